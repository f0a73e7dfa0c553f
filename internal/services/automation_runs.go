package services

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// RunStatus is the state of an in-flight workflow run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// WorkflowRun describes a workflow execution that has not finished yet.
type WorkflowRun struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	WorkflowID     string    `json:"workflowId"`
	WorkflowName   string    `json:"workflowName"`
	ConversationID string    `json:"conversationId"`
	Status         RunStatus `json:"status"`
	CurrentAction  int       `json:"currentAction"`
	TotalActions   int       `json:"totalActions"`
	StartedAt      time.Time `json:"startedAt"`
}

func (e *AutomationEngine) setStatus(runID string, status RunStatus, action int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[runID]
	if !ok {
		return
	}
	run.Status = status
	if action >= 0 {
		run.CurrentAction = action
	}
}

// finish evicts the run; its outcome lives on in the WorkflowLog table.
func (e *AutomationEngine) finish(runID string, runErr error) {
	e.mu.Lock()
	run, ok := e.runs[runID]
	delete(e.runs, runID)
	e.mu.Unlock()
	if !ok {
		return
	}
	status := RunSuccess
	if runErr != nil {
		status = RunFailed
	}
	log.Debug().
		Str("runID", runID).
		Str("workflowID", run.WorkflowID).
		Str("status", string(status)).
		Dur("duration", time.Since(run.StartedAt)).
		Msg("Workflow run finished")
}

// InFlight returns how many runs are pending or running.
func (e *AutomationEngine) InFlight() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.runs)
}

// Runs returns up to limit in-flight runs of the tenant, oldest first, plus the total
// number of matching runs.
func (e *AutomationEngine) Runs(tenantID string, limit int) ([]WorkflowRun, int) {
	e.mu.RLock()
	matched := make([]WorkflowRun, 0, len(e.runs))
	for _, run := range e.runs {
		if tenantID == "" || run.TenantID == tenantID {
			matched = append(matched, *run)
		}
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.Before(matched[j].StartedAt)
	})
	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total
}

// Run returns a copy of one in-flight run.
func (e *AutomationEngine) Run(tenantID, runID string) (WorkflowRun, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[runID]
	if !ok || run.TenantID != tenantID {
		return WorkflowRun{}, false
	}
	return *run, true
}
