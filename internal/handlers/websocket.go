package handlers

import (
	"net/http"

	"whatsapp-helpdesk/internal/realtime"
)

// WebSocket joins a client to its tenant's event room. Browsers cannot set
// headers on the upgrade request, so ?tenantId= is accepted as well.
func WebSocket(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(HeaderTenantID)
		if tenantID == "" {
			tenantID = r.URL.Query().Get("tenantId")
		}
		if tenantID == "" {
			respond(w, r, http.StatusUnauthorized, errorBody{Error: "missing tenant identity"})
			return
		}
		hub.ServeWS(w, r, tenantID)
	}
}
