package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"whatsapp-helpdesk/internal/services"
)

// API serves the helpdesk REST endpoints. Every route runs behind the identity middleware.
type API struct {
	Contacts      *services.ContactService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Inbound       *services.InboundService
	Assignment    *services.AssignmentService
	Users         *services.UserService
	Teams         *services.TeamService
	LeadStatuses  *services.LeadStatusService
	Leads         *services.LeadService
	Workflows     *services.WorkflowService
	Automation    *services.AutomationEngine
}

// Register mounts the API on r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/contacts", a.listContacts).Methods(http.MethodGet)
	r.HandleFunc("/contacts", a.createContact).Methods(http.MethodPost)
	r.HandleFunc("/contacts/{id}", a.getContact).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{id}", a.updateContact).Methods(http.MethodPatch)

	r.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/status", a.updateConversationStatus).Methods(http.MethodPatch)
	r.HandleFunc("/conversations/{id}/assign", a.assignConversation).Methods(http.MethodPatch)
	r.HandleFunc("/conversations/{id}/lead-status", a.updateConversationLeadStatus).Methods(http.MethodPatch)
	r.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", a.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/notes", a.listNotes).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/notes", a.addNote).Methods(http.MethodPost)

	r.HandleFunc("/assignment-rules", a.listRules).Methods(http.MethodGet)
	r.HandleFunc("/assignment-rules", requireElevated(a.createRule)).Methods(http.MethodPost)
	r.HandleFunc("/assignment-rules/available-agent", a.availableAgent).Methods(http.MethodGet)
	r.HandleFunc("/assignment-rules/{id}", requireElevated(a.updateRule)).Methods(http.MethodPatch)
	r.HandleFunc("/assignment-rules/{id}", requireElevated(a.deleteRule)).Methods(http.MethodDelete)

	r.HandleFunc("/users", a.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", requireElevated(a.inviteUser)).Methods(http.MethodPost)
	r.HandleFunc("/users/available", a.listAvailableUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/me/availability", a.updateMyAvailability).Methods(http.MethodPatch)
	r.HandleFunc("/users/{id}/capacity", requireElevated(a.setCapacity)).Methods(http.MethodPatch)

	r.HandleFunc("/teams", a.listTeams).Methods(http.MethodGet)
	r.HandleFunc("/teams", requireElevated(a.createTeam)).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/members", a.listTeamMembers).Methods(http.MethodGet)
	r.HandleFunc("/teams/{id}/members", requireElevated(a.addTeamMember)).Methods(http.MethodPost)
	r.HandleFunc("/teams/{id}/members/{userId}", requireElevated(a.removeTeamMember)).Methods(http.MethodDelete)

	r.HandleFunc("/lead-statuses", a.listLeadStatuses).Methods(http.MethodGet)
	r.HandleFunc("/lead-statuses", requireElevated(a.createLeadStatus)).Methods(http.MethodPost)
	r.HandleFunc("/lead-statuses/{id}", requireElevated(a.updateLeadStatus)).Methods(http.MethodPatch)
	r.HandleFunc("/lead-statuses/{id}", requireElevated(a.deleteLeadStatus)).Methods(http.MethodDelete)

	r.HandleFunc("/leads", a.listLeads).Methods(http.MethodGet)
	r.HandleFunc("/leads/stats", a.leadStats).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}", a.getLead).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}/status", a.updateLead).Methods(http.MethodPatch)
	r.HandleFunc("/leads/{id}/calls", a.addCallLog).Methods(http.MethodPost)
	r.HandleFunc("/leads/{id}/assign", a.reassignLead).Methods(http.MethodPatch)

	r.HandleFunc("/workflows", a.listWorkflows).Methods(http.MethodGet)
	r.HandleFunc("/workflows", requireElevated(a.createWorkflow)).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", a.getWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", requireElevated(a.updateWorkflow)).Methods(http.MethodPatch)
	r.HandleFunc("/workflows/{id}", requireElevated(a.deleteWorkflow)).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/logs", a.workflowLogs).Methods(http.MethodGet)

	r.HandleFunc("/automation/runs", a.automationRuns).Methods(http.MethodGet)
	r.HandleFunc("/automation/runs/{id}", a.automationRun).Methods(http.MethodGet)
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}
