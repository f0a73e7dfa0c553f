package handlers

import (
	"net/http"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/services"
)

func (a *API) listContacts(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := a.Contacts.List(r.Context(), tenantFrom(r), r.URL.Query().Get("search"), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (a *API) createContact(w http.ResponseWriter, r *http.Request) {
	var in services.ContactInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	contact, err := a.Contacts.Create(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, contact)
}

func (a *API) getContact(w http.ResponseWriter, r *http.Request) {
	contact, err := a.Contacts.Get(r.Context(), tenantFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, contact)
}

func (a *API) updateContact(w http.ResponseWriter, r *http.Request) {
	var in services.ContactUpdate
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	contact, err := a.Contacts.Update(r.Context(), tenantFrom(r), pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, contact)
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	q := r.URL.Query()
	result, err := a.Conversations.List(r.Context(), tenantFrom(r), services.ConversationFilter{
		Status:  models.ConversationStatus(q.Get("status")),
		AgentID: q.Get("agentId"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Conversations.Snapshot(r.Context(), tenantFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, snap)
}

func (a *API) updateConversationStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.ConversationStatus `json:"status"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := a.Conversations.UpdateStatus(r.Context(), tenantFrom(r), pathID(r), in.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, conv)
}

func (a *API) assignConversation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AgentID *string `json:"agentId"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := a.Conversations.Assign(r.Context(), tenantFrom(r), pathID(r), in.AgentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, conv)
}

func (a *API) updateConversationLeadStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		LeadStatus string `json:"leadStatus"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := a.Conversations.UpdateLeadStatus(r.Context(), tenantFrom(r), pathID(r), in.LeadStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, conv)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := a.Messages.ListByConversation(r.Context(), tenantFrom(r), pathID(r), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Body string `json:"body"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := a.Inbound.SendOutbound(r.Context(), tenantFrom(r), pathID(r), in.Body, actorFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, msg)
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.Conversations.ListNotes(r.Context(), tenantFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, notes)
}

func (a *API) addNote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := a.Conversations.AddNote(r.Context(), tenantFrom(r), pathID(r), actorFrom(r).ID, in.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, note)
}
