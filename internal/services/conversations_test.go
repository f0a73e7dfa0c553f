package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to models.ConversationStatus
		wantErr  bool
	}{
		{models.StatusOpen, models.StatusOpen, true},
		{models.StatusPending, models.StatusPending, true},
		{models.StatusResolved, models.StatusResolved, true},
		{models.StatusResolved, models.StatusOpen, false},
		{models.StatusOpen, models.StatusPending, false},
		{models.StatusOpen, models.StatusResolved, false},
		{models.StatusPending, models.StatusOpen, false},
		{models.StatusResolved, models.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := checkTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	_, err := e.conversations.UpdateStatus(ctx, testTenant, conv.ID, models.StatusOpen)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err := e.conversations.UpdateStatus(ctx, testTenant, conv.ID, models.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, updated.Status)

	reopened, err := e.conversations.UpdateStatus(ctx, testTenant, conv.ID, models.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, reopened.Status)

	_, err = e.conversations.UpdateStatus(ctx, testTenant, conv.ID, "ARCHIVED")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.conversations.UpdateStatus(ctx, "tenant-2", conv.ID, models.StatusPending)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Contains(t, e.events.Names(), realtime.EventConversationUpdated)
}

func TestAssignValidatesAgent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agent := e.agent(t, "ana", models.RoleAgent, models.AvailabilityOnline, 5)
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	_, err := e.conversations.Assign(ctx, testTenant, conv.ID, strPtr("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)

	assigned, err := e.conversations.Assign(ctx, testTenant, conv.ID, &agent.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedAgentID)
	assert.Equal(t, agent.ID, *assigned.AssignedAgentID)
	require.NotNil(t, assigned.AssignedAgent)
	assert.Equal(t, "ana", assigned.AssignedAgent.Name)

	unassigned, err := e.conversations.Assign(ctx, testTenant, conv.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, unassigned.AssignedAgentID)
}

func TestUpdateLeadStatusRequiresActiveStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.leadStatus(t, "Qualified", 1, true)
	e.leadStatus(t, "Archived", 2, false)
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	_, err := e.conversations.UpdateLeadStatus(ctx, testTenant, conv.ID, "Archived")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.conversations.UpdateLeadStatus(ctx, testTenant, conv.ID, "Nope")
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := e.conversations.UpdateLeadStatus(ctx, testTenant, conv.ID, "Qualified")
	require.NoError(t, err)
	require.NotNil(t, updated.LeadStatus)
	assert.Equal(t, "Qualified", *updated.LeadStatus)
}

func TestSnapshotCarriesLastMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	_, err := e.messages.Create(ctx, NewMessage{TenantID: testTenant, ConversationID: conv.ID, Direction: models.DirectionInbound, Body: "first"})
	require.NoError(t, err)
	last, err := e.messages.Create(ctx, NewMessage{TenantID: testTenant, ConversationID: conv.ID, Direction: models.DirectionOutbound, Body: "second"})
	require.NoError(t, err)

	snap, err := e.conversations.Snapshot(ctx, testTenant, conv.ID)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, last.ID, snap.Messages[0].ID)
	require.NotNil(t, snap.Contact)
	assert.Equal(t, "+15550001", snap.Contact.Phone)
	assert.False(t, snap.LastMessageAt.Before(last.CreatedAt))
}

func TestListConversationsFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agent := e.agent(t, "ana", models.RoleAgent, models.AvailabilityOnline, 5)
	c1 := e.contact(t, "+15550001")
	c2 := e.contact(t, "+15550002")
	e.conversation(t, c1.ID, models.StatusOpen, &agent.ID)
	e.conversation(t, c2.ID, models.StatusResolved, nil)

	page, err := e.conversations.List(ctx, testTenant, ConversationFilter{Status: models.StatusOpen})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	page, err = e.conversations.List(ctx, testTenant, ConversationFilter{AgentID: agent.ID})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, c1.ID, page.Data[0].ContactID)

	page, err = e.conversations.List(ctx, testTenant, ConversationFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 20, page.Limit)
}

func TestNotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	_, err := e.conversations.AddNote(ctx, testTenant, conv.ID, models.SystemUserID, "  ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.conversations.AddNote(ctx, testTenant, conv.ID, models.SystemUserID, "called back")
	require.NoError(t, err)

	notes, err := e.conversations.ListNotes(ctx, testTenant, conv.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "called back", notes[0].Content)
}

func TestMessageCreateNeverMovesLastMessageAtBackwards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	future := time.Now().UTC().AddDate(1, 0, 0)
	require.NoError(t, e.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).UpdateColumn("last_message_at", future).Error)

	_, err := e.messages.Create(ctx, NewMessage{TenantID: testTenant, ConversationID: conv.ID, Direction: models.DirectionInbound, Body: "hi"})
	require.NoError(t, err)

	var reloaded models.Conversation
	require.NoError(t, e.db.First(&reloaded, "id = ?", conv.ID).Error)
	assert.True(t, reloaded.LastMessageAt.Equal(future))

	_, err = e.messages.Create(ctx, NewMessage{TenantID: testTenant, ConversationID: conv.ID, Direction: "SIDEWAYS", Body: "hi"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdvanceLastMessageAtComparesInstants(t *testing.T) {
	e := newEnv(t)
	c := e.contact(t, "+15550002")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	stored := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, e.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).UpdateColumn("last_message_at", stored).Error)

	lastMessageAt := func() time.Time {
		var reloaded models.Conversation
		require.NoError(t, e.db.First(&reloaded, "id = ?", conv.ID).Error)
		return reloaded.LastMessageAt
	}

	require.NoError(t, advanceLastMessageAt(e.db, conv.ID, stored.Add(-500*time.Millisecond)))
	assert.True(t, lastMessageAt().Equal(stored))

	later := stored.Add(500 * time.Millisecond)
	require.NoError(t, advanceLastMessageAt(e.db, conv.ID, later))
	assert.True(t, lastMessageAt().Equal(later))

	assert.ErrorIs(t, advanceLastMessageAt(e.db, "missing", later), ErrNotFound)
}

func strPtr(s string) *string { return &s }
