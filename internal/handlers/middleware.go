package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"whatsapp-helpdesk/internal/services"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	actorKey
)

// baseChain logs every request with its id, remote address and duration.
func baseChain(logger zerolog.Logger) alice.Chain {
	return alice.New(
		hlog.NewHandler(logger),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request handled")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
	)
}

// identity resolves the tenant and acting user from the headers set by the
// upstream auth gateway.
type identity struct {
	users *services.UserService
}

func (i identity) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(HeaderTenantID)
		userID := r.Header.Get(HeaderUserID)
		if tenantID == "" || userID == "" {
			respond(w, r, http.StatusUnauthorized, errorBody{Error: "missing tenant or user identity"})
			return
		}
		user, err := i.users.Get(r.Context(), tenantID, userID)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("tenantID", tenantID).Str("userID", userID).Msg("Unknown user for request")
			respond(w, r, http.StatusUnauthorized, errorBody{Error: "unknown user"})
			return
		}

		logger := hlog.FromRequest(r).With().Str("tenantID", tenantID).Str("userID", userID).Logger()
		ctx := logger.WithContext(r.Context())
		ctx = context.WithValue(ctx, tenantKey, tenantID)
		ctx = context.WithValue(ctx, actorKey, services.Actor{ID: user.ID, Role: user.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireElevated rejects agents; owners and admins pass.
func requireElevated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r).Role.Elevated() {
			respond(w, r, http.StatusForbidden, errorBody{Error: "admin role required"})
			return
		}
		next(w, r)
	}
}

func tenantFrom(r *http.Request) string {
	tenantID, _ := r.Context().Value(tenantKey).(string)
	return tenantID
}

func actorFrom(r *http.Request) services.Actor {
	actor, _ := r.Context().Value(actorKey).(services.Actor)
	return actor
}
