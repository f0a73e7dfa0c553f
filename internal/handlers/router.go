package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"whatsapp-helpdesk/internal/realtime"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	API         *API
	Webhook     *WebhookHandler
	WebhookPath string
	Hub         *realtime.Hub
	Logger      zerolog.Logger
}

// NewRouter builds the HTTP handler: webhook endpoints, the websocket feed and the
// REST API under /api, all behind request logging and CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if cfg.Webhook != nil {
		router.HandleFunc(cfg.WebhookPath, cfg.Webhook.Verify).Methods(http.MethodGet)
		router.HandleFunc(cfg.WebhookPath, cfg.Webhook.Handle).Methods(http.MethodPost)
	}
	if cfg.Hub != nil {
		router.HandleFunc("/ws", WebSocket(cfg.Hub))
	}
	if cfg.API != nil {
		api := router.PathPrefix("/api").Subrouter()
		api.Use(identity{users: cfg.API.Users}.handler)
		cfg.API.Register(api)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderTenantID, HeaderUserID},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return baseChain(cfg.Logger).Then(c.Handler(router))
}
