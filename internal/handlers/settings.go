package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/services"
)

func (a *API) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.Assignment.ListRules(r.Context(), tenantFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rules)
}

func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	var in services.RuleInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := a.Assignment.CreateRule(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, rule)
}

func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	var in services.RuleUpdate
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := a.Assignment.UpdateRule(r.Context(), tenantFrom(r), pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rule)
}

func (a *API) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := a.Assignment.DeleteRule(r.Context(), tenantFrom(r), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// availableAgent previews who auto-assignment would pick right now.
func (a *API) availableAgent(w http.ResponseWriter, r *http.Request) {
	var teamID *string
	if t := r.URL.Query().Get("teamId"); t != "" {
		teamID = &t
	}
	agent, err := a.Assignment.FindAvailableAgent(r.Context(), tenantFrom(r), teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"agent": agent})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Users.List(r.Context(), tenantFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, users)
}

func (a *API) inviteUser(w http.ResponseWriter, r *http.Request) {
	var in services.InviteInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.Users.Invite(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, user)
}

func (a *API) listAvailableUsers(w http.ResponseWriter, r *http.Request) {
	loads, err := a.Users.ListAvailable(r.Context(), tenantFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, loads)
}

func (a *API) updateMyAvailability(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Availability models.Availability `json:"availability"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.Users.UpdateAvailability(r.Context(), tenantFrom(r), actorFrom(r).ID, in.Availability)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}

func (a *API) setCapacity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MaxOpenConvo int `json:"maxOpenConvo"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.Users.SetCapacity(r.Context(), tenantFrom(r), pathID(r), in.MaxOpenConvo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, user)
}

func (a *API) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.Teams.List(r.Context(), tenantFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, teams)
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	team, err := a.Teams.Create(r.Context(), tenantFrom(r), in.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, team)
}

func (a *API) listTeamMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.Teams.Members(r.Context(), tenantFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, members)
}

func (a *API) addTeamMember(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"userId"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := a.Teams.AddMember(r.Context(), tenantFrom(r), pathID(r), in.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, member)
}

func (a *API) removeTeamMember(w http.ResponseWriter, r *http.Request) {
	if err := a.Teams.RemoveMember(r.Context(), tenantFrom(r), pathID(r), mux.Vars(r)["userId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listLeadStatuses(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	statuses, err := a.LeadStatuses.List(r.Context(), tenantFrom(r), all)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, statuses)
}

func (a *API) createLeadStatus(w http.ResponseWriter, r *http.Request) {
	var in services.LeadStatusInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := a.LeadStatuses.Create(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, status)
}

func (a *API) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var in services.LeadStatusUpdate
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := a.LeadStatuses.Update(r.Context(), tenantFrom(r), pathID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, status)
}

func (a *API) deleteLeadStatus(w http.ResponseWriter, r *http.Request) {
	if err := a.LeadStatuses.Delete(r.Context(), tenantFrom(r), pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
