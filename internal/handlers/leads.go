package handlers

import (
	"net/http"

	"whatsapp-helpdesk/internal/services"
)

func (a *API) listLeads(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	q := r.URL.Query()
	result, err := a.Leads.List(r.Context(), tenantFrom(r), actorFrom(r), services.LeadFilter{
		Search:     q.Get("search"),
		LeadStatus: q.Get("leadStatus"),
		AgentID:    q.Get("agentId"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (a *API) leadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Leads.Stats(r.Context(), tenantFrom(r), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats)
}

func (a *API) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := a.Leads.Get(r.Context(), tenantFrom(r), pathID(r), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, lead)
}

func (a *API) updateLead(w http.ResponseWriter, r *http.Request) {
	var in struct {
		LeadStatus string `json:"leadStatus"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	lead, err := a.Leads.UpdateStatus(r.Context(), tenantFrom(r), pathID(r), in.LeadStatus, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, lead)
}

func (a *API) addCallLog(w http.ResponseWriter, r *http.Request) {
	var in services.CallLogInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := a.Leads.AddCallLog(r.Context(), tenantFrom(r), pathID(r), actorFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, entry)
}

func (a *API) reassignLead(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AgentID string `json:"agentId"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	lead, err := a.Leads.Reassign(r.Context(), tenantFrom(r), pathID(r), in.AgentID, actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, lead)
}
