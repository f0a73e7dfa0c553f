package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

func TestInviteUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.users.Invite(ctx, testTenant, InviteInput{Email: " Ana@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "ana", u.Name)
	assert.Equal(t, models.RoleAgent, u.Role)
	assert.Equal(t, models.AvailabilityOffline, u.Availability)
	assert.Equal(t, models.DefaultMaxOpenConversations, u.MaxOpenConvo)

	_, err = e.users.Invite(ctx, testTenant, InviteInput{Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = e.users.Invite(ctx, "tenant-2", InviteInput{Email: "ana@example.com"})
	assert.NoError(t, err)

	_, err = e.users.Invite(ctx, testTenant, InviteInput{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.users.Invite(ctx, testTenant, InviteInput{Email: "x@example.com", Role: "ROOT"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAvailabilityAndCapacity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agent := e.agent(t, "ana", models.RoleAgent, models.AvailabilityOffline, 5)

	available, err := e.users.ListAvailable(ctx, testTenant)
	require.NoError(t, err)
	assert.Empty(t, available)

	updated, err := e.users.UpdateAvailability(ctx, testTenant, agent.ID, models.AvailabilityOnline)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityOnline, updated.Availability)
	assert.Equal(t, []string{realtime.EventUserAvailability}, e.events.Names())

	_, err = e.users.UpdateAvailability(ctx, testTenant, agent.ID, "BUSY")
	assert.ErrorIs(t, err, ErrValidation)

	e.openConversations(t, agent, 2)
	available, err = e.users.ListAvailable(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.EqualValues(t, 2, available[0].OpenConversations)

	_, err = e.users.SetCapacity(ctx, testTenant, agent.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)
	capped, err := e.users.SetCapacity(ctx, testTenant, agent.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, capped.MaxOpenConvo)

	found, err := e.assignment.FindAvailableAgent(ctx, testTenant, nil)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTeams(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.agent(t, "ana", models.RoleAgent, models.AvailabilityOnline, 5)
	bia := e.agent(t, "bia", models.RoleAgent, models.AvailabilityOnline, 5)

	_, err := e.teams.Create(ctx, testTenant, "")
	assert.ErrorIs(t, err, ErrValidation)
	team, err := e.teams.Create(ctx, testTenant, "Sales")
	require.NoError(t, err)

	_, err = e.teams.AddMember(ctx, testTenant, team.ID, ana.ID)
	require.NoError(t, err)
	_, err = e.teams.AddMember(ctx, testTenant, team.ID, bia.ID)
	require.NoError(t, err)
	_, err = e.teams.AddMember(ctx, testTenant, team.ID, ana.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = e.teams.AddMember(ctx, testTenant, team.ID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.teams.AddMember(ctx, "tenant-2", team.ID, ana.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	members, err := e.teams.Members(ctx, testTenant, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ana.ID, members[0].ID)

	teams, err := e.teams.List(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Len(t, teams[0].Members, 2)
	assert.NotNil(t, teams[0].Members[0].User)

	require.NoError(t, e.teams.RemoveMember(ctx, testTenant, team.ID, ana.ID))
	assert.ErrorIs(t, e.teams.RemoveMember(ctx, testTenant, team.ID, ana.ID), ErrNotFound)
	members, err = e.teams.Members(ctx, testTenant, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bia.ID, members[0].ID)
}
