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

func TestEvaluateTriggerKeywordModes(t *testing.T) {
	keywords := []string{"refund", "cancel"}
	body := "please cancel my order"

	assert.True(t, EvaluateTrigger(models.Trigger{Type: models.TriggerKeywordMatch, Keywords: keywords, MatchMode: models.MatchAny}, body, false))
	assert.False(t, EvaluateTrigger(models.Trigger{Type: models.TriggerKeywordMatch, Keywords: keywords, MatchMode: models.MatchAll}, body, false))
	assert.True(t, EvaluateTrigger(models.Trigger{Type: models.TriggerKeywordMatch, Keywords: keywords}, "REFUND please", false))
	assert.True(t, EvaluateTrigger(models.Trigger{Type: models.TriggerNewMessage}, "", false))
	assert.False(t, EvaluateTrigger(models.Trigger{Type: models.TriggerNewConversation}, "hi", false))
	assert.True(t, EvaluateTrigger(models.Trigger{Type: models.TriggerNewConversation}, "hi", true))
}

func TestWorkflowFailureKeepsEarlierEffects(t *testing.T) {
	e := newEnv(t)
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)
	wf := e.workflow(t, "reply then tag",
		models.Trigger{Type: models.TriggerNewMessage},
		models.Action{Type: models.ActionSendReply, Body: "Thanks, we got it"},
		models.Action{Type: models.ActionChangeLeadStatus, Status: "Does not exist"},
		models.Action{Type: models.ActionAddNote, Content: "never written"},
	)

	e.engine.OnNewMessage(testTenant, conv.ID, "hello", true)
	e.engine.Wait()

	logs := e.logsOf(t, wf.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.WorkflowLogFailed, logs[0].Status)
	require.NotNil(t, logs[0].Error)
	assert.Contains(t, *logs[0].Error, "change_lead_status")

	replies := e.messagesOf(t, conv.ID, models.DirectionOutbound)
	require.Len(t, replies, 1)
	assert.Equal(t, "Thanks, we got it", replies[0].Body)
	assert.Nil(t, replies[0].SenderID)

	var notes int64
	require.NoError(t, e.db.Model(&models.ConversationNote{}).Where("conversation_id = ?", conv.ID).Count(&notes).Error)
	assert.Zero(t, notes)
	assert.Contains(t, e.events.Names(), realtime.EventMessageNew)
}

func TestWorkflowRunsActionsInOrder(t *testing.T) {
	e := newEnv(t)
	agent := e.agent(t, "ana", models.RoleAgent, models.AvailabilityOnline, 5)
	e.leadStatus(t, "Qualified", 1, true)
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)
	wf := e.workflow(t, "qualify",
		models.Trigger{Type: models.TriggerKeywordMatch, Keywords: []string{"price"}},
		models.Action{Type: models.ActionChangeLeadStatus, Status: "Qualified"},
		models.Action{Type: models.ActionDelay},
		models.Action{Type: models.ActionAssignAgent, AgentID: agent.ID},
		models.Action{Type: models.ActionAddNote, Content: "asked for pricing"},
		models.Action{Type: models.ActionSendReply, Body: ""},
	)

	e.engine.OnNewMessage(testTenant, conv.ID, "What is the PRICE?", false)
	e.engine.Wait()

	logs := e.logsOf(t, wf.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.WorkflowLogSuccess, logs[0].Status)
	assert.Nil(t, logs[0].Error)

	var reloaded models.Conversation
	require.NoError(t, e.db.First(&reloaded, "id = ?", conv.ID).Error)
	require.NotNil(t, reloaded.LeadStatus)
	assert.Equal(t, "Qualified", *reloaded.LeadStatus)
	require.NotNil(t, reloaded.AssignedAgentID)
	assert.Equal(t, agent.ID, *reloaded.AssignedAgentID)

	var note models.ConversationNote
	require.NoError(t, e.db.Where("conversation_id = ?", conv.ID).First(&note).Error)
	assert.Equal(t, models.SystemUserID, note.UserID)

	assert.Equal(t, []time.Duration{time.Second}, e.sleeps.all())
	assert.Empty(t, e.messagesOf(t, conv.ID, models.DirectionOutbound))
}

func TestWorkflowTriggersAreIndependent(t *testing.T) {
	e := newEnv(t)
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)

	welcome := e.workflow(t, "welcome", models.Trigger{Type: models.TriggerNewConversation},
		models.Action{Type: models.ActionSendReply, Body: "Welcome!"})
	broken := e.workflow(t, "broken", models.Trigger{Type: models.TriggerNewMessage},
		models.Action{Type: models.ActionAssignAgent, AgentID: "ghost"})
	refunds := e.workflow(t, "refunds", models.Trigger{Type: models.TriggerKeywordMatch, Keywords: []string{"refund", "cancel"}, MatchMode: models.MatchAll},
		models.Action{Type: models.ActionAddNote, Content: "refund request"})
	inactive := e.workflow(t, "inactive", models.Trigger{Type: models.TriggerNewMessage},
		models.Action{Type: models.ActionSendReply, Body: "should not run"})
	require.NoError(t, e.db.Model(&inactive).Update("is_active", false).Error)

	e.engine.OnNewMessage(testTenant, conv.ID, "please cancel my order", true)
	e.engine.Wait()

	welcomeLogs := e.logsOf(t, welcome.ID)
	require.Len(t, welcomeLogs, 1)
	assert.Equal(t, models.WorkflowLogSuccess, welcomeLogs[0].Status)

	brokenLogs := e.logsOf(t, broken.ID)
	require.Len(t, brokenLogs, 1)
	assert.Equal(t, models.WorkflowLogFailed, brokenLogs[0].Status)

	assert.Empty(t, e.logsOf(t, refunds.ID))
	assert.Empty(t, e.logsOf(t, inactive.ID))

	replies := e.messagesOf(t, conv.ID, models.DirectionOutbound)
	require.Len(t, replies, 1)
	assert.Equal(t, "Welcome!", replies[0].Body)

	// a follow-up message is not the first one any more
	e.engine.OnNewMessage(testTenant, conv.ID, "refund and cancel", false)
	e.engine.Wait()
	assert.Len(t, e.logsOf(t, welcome.ID), 1)
	assert.Len(t, e.logsOf(t, refunds.ID), 1)
	assert.Len(t, e.logsOf(t, broken.ID), 2)
}

func TestWorkflowRunsAreTracked(t *testing.T) {
	e := newEnv(t)
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)
	wf := e.workflow(t, "slow", models.Trigger{Type: models.TriggerNewMessage},
		models.Action{Type: models.ActionDelay, Seconds: 30},
		models.Action{Type: models.ActionAddNote, Content: "done waiting"})

	started := make(chan struct{})
	release := make(chan struct{})
	e.engine.sleep = func(ctx context.Context, d time.Duration) error {
		close(started)
		<-release
		return nil
	}

	e.engine.OnNewMessage(testTenant, conv.ID, "hi", false)
	<-started

	runs, total := e.engine.Runs(testTenant, 10)
	require.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, wf.ID, runs[0].WorkflowID)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.Equal(t, 0, runs[0].CurrentAction)
	assert.Equal(t, 2, runs[0].TotalActions)

	run, ok := e.engine.Run(testTenant, runs[0].ID)
	assert.True(t, ok)
	assert.Equal(t, conv.ID, run.ConversationID)
	_, ok = e.engine.Run("tenant-2", runs[0].ID)
	assert.False(t, ok)
	other, _ := e.engine.Runs("tenant-2", 10)
	assert.Empty(t, other)

	close(release)
	e.engine.Wait()
	assert.Zero(t, e.engine.InFlight())
	require.Len(t, e.logsOf(t, wf.ID), 1)
}

func TestShutdownCancelsPendingDelays(t *testing.T) {
	e := newEnv(t)
	e.engine.sleep = sleepContext
	c := e.contact(t, "+15550001")
	conv := e.conversation(t, c.ID, models.StatusOpen, nil)
	wf := e.workflow(t, "long wait", models.Trigger{Type: models.TriggerNewMessage},
		models.Action{Type: models.ActionDelay, Seconds: 3600})

	e.engine.OnNewMessage(testTenant, conv.ID, "hi", false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.engine.Shutdown(ctx)
	assert.Error(t, err)

	logs := e.logsOf(t, wf.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.WorkflowLogFailed, logs[0].Status)
	require.NotNil(t, logs[0].Error)
	assert.Contains(t, *logs[0].Error, "context canceled")
}

func TestShutdownWithoutRuns(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, e.engine.Shutdown(ctx))
}
