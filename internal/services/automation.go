package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

// AutomationEngine runs chatbot workflows in response to inbound messages. Every matched
// workflow runs on its own goroutine; failures end up in WorkflowLog rows, never in the
// caller.
type AutomationEngine struct {
	db            *gorm.DB
	cache         *TenantCache
	messages      *MessageService
	conversations *ConversationService
	broadcaster   realtime.Broadcaster

	// sleep waits for d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*WorkflowRun
}

// NewAutomationEngine creates a new AutomationEngine.
func NewAutomationEngine(db *gorm.DB, cache *TenantCache, messages *MessageService, conversations *ConversationService, broadcaster realtime.Broadcaster) (*AutomationEngine, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if messages == nil {
		return nil, fmt.Errorf("MessageService cannot be nil")
	}
	if conversations == nil {
		return nil, fmt.Errorf("ConversationService cannot be nil")
	}
	if broadcaster == nil {
		broadcaster = realtime.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AutomationEngine{
		db:            db,
		cache:         cache,
		messages:      messages,
		conversations: conversations,
		broadcaster:   broadcaster,
		sleep:         sleepContext,
		ctx:           ctx,
		cancel:        cancel,
		runs:          make(map[string]*WorkflowRun),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EvaluateTrigger reports whether a workflow's trigger fires for the message.
func EvaluateTrigger(trigger models.Trigger, body string, isFirstMessage bool) bool {
	return trigger.Matches(body, isFirstMessage)
}

// OnNewMessage evaluates the tenant's active workflows against an inbound message and
// starts a run for every match. It returns immediately.
func (e *AutomationEngine) OnNewMessage(tenantID, conversationID, body string, isFirstMessage bool) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("tenantID", tenantID).Str("conversationID", conversationID).Msg("Automation dispatch panicked")
			}
		}()
		e.dispatch(tenantID, conversationID, body, isFirstMessage)
	}()
}

func (e *AutomationEngine) dispatch(tenantID, conversationID, body string, isFirstMessage bool) {
	workflows, err := e.activeWorkflows(e.ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to load workflows for automation")
		return
	}

	matched := 0
	for _, wf := range workflows {
		if !EvaluateTrigger(wf.Trigger.Data(), body, isFirstMessage) {
			continue
		}
		matched++
		run := e.track(tenantID, conversationID, wf)
		e.wg.Add(1)
		go func(wf models.ChatbotWorkflow) {
			defer e.wg.Done()
			e.execute(run, wf)
		}(wf)
	}
	log.Debug().
		Str("tenantID", tenantID).
		Str("conversationID", conversationID).
		Int("workflows", len(workflows)).
		Int("matched", matched).
		Msg("Automation evaluated inbound message")
}

func (e *AutomationEngine) activeWorkflows(ctx context.Context, tenantID string) ([]models.ChatbotWorkflow, error) {
	workflows, gen, ok := e.cache.workflows(tenantID)
	if ok {
		return workflows, nil
	}
	if err := e.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("created_at ASC").
		Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}
	e.cache.setWorkflows(tenantID, gen, workflows)
	return workflows, nil
}

// execute runs the workflow's actions in order and writes exactly one WorkflowLog.
func (e *AutomationEngine) execute(run *WorkflowRun, wf models.ChatbotWorkflow) {
	logger := log.With().
		Str("tenantID", run.TenantID).
		Str("workflowID", wf.ID).
		Str("workflow", wf.Name).
		Str("conversationID", run.ConversationID).
		Str("runID", run.ID).
		Logger()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Workflow run panicked")
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		e.setStatus(run.ID, RunRunning, -1)
		for i, action := range wf.Actions {
			e.setStatus(run.ID, RunRunning, i)
			if err := e.executeAction(e.ctx, run.TenantID, run.ConversationID, action); err != nil {
				runErr = fmt.Errorf("action %d (%s): %w", i, action.Type, err)
				return
			}
		}
	}()

	entry := models.WorkflowLog{
		WorkflowID:     wf.ID,
		ConversationID: run.ConversationID,
		Status:         models.WorkflowLogSuccess,
		ExecutedAt:     time.Now().UTC(),
	}
	if runErr != nil {
		entry.Status = models.WorkflowLogFailed
		msg := runErr.Error()
		entry.Error = &msg
		logger.Warn().Err(runErr).Msg("Workflow run failed")
	} else {
		logger.Info().Int("actions", len(wf.Actions)).Msg("Workflow run completed")
	}
	// the log must be written even when the engine is shutting down
	if err := e.db.WithContext(context.Background()).Create(&entry).Error; err != nil {
		logger.Error().Err(err).Msg("Failed to write workflow log")
	}
	e.finish(run.ID, runErr)
}

func (e *AutomationEngine) executeAction(ctx context.Context, tenantID, conversationID string, action models.Action) error {
	switch action.Type {
	case models.ActionSendReply:
		if strings.TrimSpace(action.Body) == "" {
			return nil
		}
		msg, err := e.messages.Create(ctx, NewMessage{
			TenantID:       tenantID,
			ConversationID: conversationID,
			Direction:      models.DirectionOutbound,
			Body:           action.Body,
		})
		if err != nil {
			return err
		}
		e.broadcaster.Broadcast(tenantID, realtime.EventMessageNew, msg)
		return nil

	case models.ActionChangeLeadStatus:
		if action.Status == "" {
			return nil
		}
		_, err := e.conversations.UpdateLeadStatus(ctx, tenantID, conversationID, action.Status)
		return err

	case models.ActionAssignAgent:
		if action.AgentID == "" {
			return nil
		}
		agentID := action.AgentID
		_, err := e.conversations.Assign(ctx, tenantID, conversationID, &agentID)
		return err

	case models.ActionAddNote:
		if strings.TrimSpace(action.Content) == "" {
			return nil
		}
		_, err := e.conversations.AddNote(ctx, tenantID, conversationID, models.SystemUserID, action.Content)
		return err

	case models.ActionDelay:
		return e.sleep(ctx, time.Duration(action.DelaySeconds())*time.Second)

	default:
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, action.Type)
	}
}

// Wait blocks until every dispatched run has written its log.
func (e *AutomationEngine) Wait() {
	e.wg.Wait()
}

// Shutdown waits for in-flight runs until ctx expires, then cancels pending delays
// and waits for the runs to record their failure.
func (e *AutomationEngine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		log.Warn().Int("inFlight", e.InFlight()).Msg("Automation shutdown timed out, cancelling runs")
		e.cancel()
		<-done
		return errors.New("automation runs cancelled at shutdown")
	}
}

// track registers a pending run for status reporting.
func (e *AutomationEngine) track(tenantID, conversationID string, wf models.ChatbotWorkflow) *WorkflowRun {
	run := &WorkflowRun{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		WorkflowID:     wf.ID,
		WorkflowName:   wf.Name,
		ConversationID: conversationID,
		Status:         RunPending,
		CurrentAction:  -1,
		TotalActions:   len(wf.Actions),
		StartedAt:      time.Now().UTC(),
	}
	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()
	return run
}
