package handlers

import (
	"net/http"
	"strconv"

	"whatsapp-helpdesk/internal/services"
)

const defaultRunsLimit = 100

func (a *API) listWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := a.Workflows.List(r.Context(), tenantFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, workflows)
}

func (a *API) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var in services.WorkflowInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := a.Workflows.Create(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, wf)
}

func (a *API) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := a.Workflows.Get(r.Context(), tenantFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, wf)
}

func (a *API) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var in services.WorkflowUpdate
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := a.Workflows.Update(r.Context(), tenantFrom(r), pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, wf)
}

func (a *API) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := a.Workflows.Delete(r.Context(), tenantFrom(r), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) workflowLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.Workflows.Logs(r.Context(), tenantFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, logs)
}

// automationRuns lists the tenant's workflow runs that have not finished yet.
func (a *API) automationRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, total := a.Automation.Runs(tenantFrom(r), limit)
	respond(w, r, http.StatusOK, map[string]interface{}{
		"runs":     runs,
		"count":    len(runs),
		"total":    total,
		"inFlight": a.Automation.InFlight(),
	})
}

func (a *API) automationRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.Automation.Run(tenantFrom(r), pathID(r))
	if !ok {
		respond(w, r, http.StatusNotFound, errorBody{Error: "run not found or already finished"})
		return
	}
	respond(w, r, http.StatusOK, run)
}
