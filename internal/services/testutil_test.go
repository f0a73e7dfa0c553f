package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/adapters/whatsapp"
	"whatsapp-helpdesk/internal/db"
	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

const testTenant = "tenant-1"

// env wires every service against a fresh in-memory database.
type env struct {
	db            *gorm.DB
	events        *realtime.Recorder
	cache         *TenantCache
	locks         *KeyedMutex
	contacts      *ContactService
	conversations *ConversationService
	messages      *MessageService
	assignment    *AssignmentService
	engine        *AutomationEngine
	inbound       *InboundService
	leadStatuses  *LeadStatusService
	leads         *LeadService
	users         *UserService
	teams         *TeamService
	workflows     *WorkflowService
	provider      *fakeProvider

	sleeps *sleepLog
	clock  time.Time
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepLog) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type fakeProvider struct {
	mu   sync.Mutex
	sent []whatsapp.OutboundMessage
	err  error
}

func (p *fakeProvider) Send(ctx context.Context, msg whatsapp.OutboundMessage) (*whatsapp.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.sent = append(p.sent, msg)
	return &whatsapp.SendResult{ExternalID: fmt.Sprintf("wamid.%d", len(p.sent))}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn, models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := newTestDB(t)
	e := &env{
		db:       conn,
		events:   &realtime.Recorder{},
		cache:    NewTenantCache(0),
		locks:    NewKeyedMutex(),
		sleeps:   &sleepLog{},
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		provider: &fakeProvider{},
	}
	var err error
	e.contacts, err = NewContactService(conn)
	require.NoError(t, err)
	e.conversations, err = NewConversationService(conn, e.events, "New lead")
	require.NoError(t, err)
	e.messages, err = NewMessageService(conn)
	require.NoError(t, err)
	e.assignment, err = NewAssignmentService(conn, e.cache, e.locks, e.events)
	require.NoError(t, err)
	e.engine, err = NewAutomationEngine(conn, e.cache, e.messages, e.conversations, e.events)
	require.NoError(t, err)
	e.engine.sleep = e.sleeps.sleep
	e.inbound, err = NewInboundService(e.contacts, e.conversations, e.messages, e.assignment, e.engine, e.provider, e.events, e.locks)
	require.NoError(t, err)
	e.leadStatuses, err = NewLeadStatusService(conn)
	require.NoError(t, err)
	e.leads, err = NewLeadService(conn, db.DriverName("sqlite"), e.conversations, "New lead")
	require.NoError(t, err)
	e.users, err = NewUserService(conn, e.events)
	require.NoError(t, err)
	e.teams, err = NewTeamService(conn)
	require.NoError(t, err)
	e.workflows, err = NewWorkflowService(conn, e.cache)
	require.NoError(t, err)

	t.Cleanup(e.engine.Wait)
	return e
}

// tick returns a strictly increasing timestamp so fixture ordering is deterministic.
func (e *env) tick() time.Time {
	e.clock = e.clock.Add(time.Second)
	return e.clock
}

func (e *env) agent(t *testing.T, name string, role models.UserRole, availability models.Availability, capacity int) models.User {
	t.Helper()
	u := models.User{
		Base:         models.Base{CreatedAt: e.tick()},
		TenantID:     testTenant,
		Email:        name + "@example.com",
		Name:         name,
		Role:         role,
		Availability: availability,
		MaxOpenConvo: capacity,
	}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *env) contact(t *testing.T, phone string, tags ...string) models.Contact {
	t.Helper()
	c := models.Contact{
		Base:     models.Base{CreatedAt: e.tick()},
		TenantID: testTenant,
		Phone:    phone,
		Tags:     datatypes.JSONSlice[string](tags),
	}
	require.NoError(t, e.db.Create(&c).Error)
	return c
}

func (e *env) conversation(t *testing.T, contactID string, status models.ConversationStatus, agentID *string) models.Conversation {
	t.Helper()
	at := e.tick()
	c := models.Conversation{
		Base:            models.Base{CreatedAt: at},
		TenantID:        testTenant,
		ContactID:       contactID,
		AssignedAgentID: agentID,
		Channel:         models.ChannelWhatsApp,
		Status:          status,
		LeadStatus:      models.StringPtr("New lead"),
		LastMessageAt:   at,
	}
	require.NoError(t, e.db.Create(&c).Error)
	return c
}

// openConversations gives agent n open conversations with throwaway contacts.
func (e *env) openConversations(t *testing.T, agent models.User, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c := e.contact(t, fmt.Sprintf("+1555%s%02d", agent.Name, i))
		id := agent.ID
		e.conversation(t, c.ID, models.StatusOpen, &id)
	}
}

func (e *env) rule(t *testing.T, name string, priority int, strategy models.AssignmentStrategy, conditions models.RuleConditions, teamID *string) models.AssignmentRule {
	t.Helper()
	r := models.AssignmentRule{
		Base:       models.Base{CreatedAt: e.tick()},
		TenantID:   testTenant,
		Name:       name,
		Priority:   priority,
		Strategy:   strategy,
		IsActive:   true,
		Conditions: datatypes.NewJSONType(conditions),
		TeamID:     teamID,
	}
	require.NoError(t, e.db.Create(&r).Error)
	return r
}

func (e *env) leadStatus(t *testing.T, name string, sortOrder int, active bool) models.CustomLeadStatus {
	t.Helper()
	s := models.CustomLeadStatus{
		Base:      models.Base{CreatedAt: e.tick()},
		TenantID:  testTenant,
		Name:      name,
		Color:     models.DefaultLeadStatusColor,
		SortOrder: sortOrder,
		IsActive:  active,
	}
	require.NoError(t, e.db.Create(&s).Error)
	return s
}

func (e *env) workflow(t *testing.T, name string, trigger models.Trigger, actions ...models.Action) models.ChatbotWorkflow {
	t.Helper()
	wf := models.ChatbotWorkflow{
		Base:     models.Base{CreatedAt: e.tick()},
		TenantID: testTenant,
		Name:     name,
		IsActive: true,
		Trigger:  datatypes.NewJSONType(trigger),
		Actions:  datatypes.JSONSlice[models.Action](actions),
	}
	require.NoError(t, e.db.Create(&wf).Error)
	return wf
}

func (e *env) messagesOf(t *testing.T, conversationID string, direction models.MessageDirection) []models.Message {
	t.Helper()
	var msgs []models.Message
	require.NoError(t, e.db.Where("conversation_id = ? AND direction = ?", conversationID, direction).Order("created_at ASC").Find(&msgs).Error)
	return msgs
}

func (e *env) logsOf(t *testing.T, workflowID string) []models.WorkflowLog {
	t.Helper()
	var logs []models.WorkflowLog
	require.NoError(t, e.db.Where("workflow_id = ?", workflowID).Find(&logs).Error)
	return logs
}
