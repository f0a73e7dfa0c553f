package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-helpdesk/config"
	"whatsapp-helpdesk/internal/adapters/whatsapp"
	"whatsapp-helpdesk/internal/db"
	"whatsapp-helpdesk/internal/handlers"
	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
	"whatsapp-helpdesk/internal/services"
	"whatsapp-helpdesk/pkg/httputil"
	"whatsapp-helpdesk/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.InitLogger()

	log.Info().Msg("Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Str("driver", cfg.DatabaseDriver).Msg("Initializing database...")
	if err := db.InitDB(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := db.MigrateDB(models.All()...); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	hub := realtime.NewHub()
	broadcaster := realtime.Fanout{hub}
	var rabbit *realtime.RabbitPublisher
	if cfg.RabbitMQURL != "" {
		rabbit, err = realtime.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueuePrefix, cfg.RabbitMQSpecificEvents)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to RabbitMQ, events stay local")
		} else {
			broadcaster = append(broadcaster, rabbit)
		}
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize WhatsApp provider")
	}

	cache := services.NewTenantCache(cfg.CacheTTL)
	locks := services.NewKeyedMutex()

	contacts, err := services.NewContactService(db.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ContactService")
	}
	conversations, err := services.NewConversationService(db.DB, broadcaster, cfg.DefaultLeadStatus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ConversationService")
	}
	messages, err := services.NewMessageService(db.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MessageService")
	}
	assignment, err := services.NewAssignmentService(db.DB, cache, locks, broadcaster)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AssignmentService")
	}
	engine, err := services.NewAutomationEngine(db.DB, cache, messages, conversations, broadcaster)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AutomationEngine")
	}
	inbound, err := services.NewInboundService(contacts, conversations, messages, assignment, engine, provider, broadcaster, locks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize InboundService")
	}
	users, err := services.NewUserService(db.DB, broadcaster)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize UserService")
	}
	teams, err := services.NewTeamService(db.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TeamService")
	}
	leadStatuses, err := services.NewLeadStatusService(db.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LeadStatusService")
	}
	leads, err := services.NewLeadService(db.DB, db.DriverName(cfg.DatabaseDriver), conversations, cfg.DefaultLeadStatus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LeadService")
	}
	workflows, err := services.NewWorkflowService(db.DB, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize WorkflowService")
	}
	log.Info().Msg("Services initialized successfully")

	router := handlers.NewRouter(handlers.RouterConfig{
		API: &handlers.API{
			Contacts:      contacts,
			Conversations: conversations,
			Messages:      messages,
			Inbound:       inbound,
			Assignment:    assignment,
			Users:         users,
			Teams:         teams,
			LeadStatuses:  leadStatuses,
			Leads:         leads,
			Workflows:     workflows,
			Automation:    engine,
		},
		Webhook:     handlers.NewWebhookHandler(inbound, cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, cfg.WhatsAppTenantID),
		WebhookPath: cfg.WebhookPath,
		Hub:         hub,
		Logger:      log.Logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("webhookPath", cfg.WebhookPath).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-stop
	log.Info().Msg("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	runsCtx, cancelRuns := context.WithTimeout(context.Background(), cfg.AutomationShutdownTimeout)
	defer cancelRuns()
	if err := engine.Shutdown(runsCtx); err != nil {
		log.Warn().Err(err).Msg("Automation runs did not finish in time")
	}

	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing RabbitMQ connection")
		}
	}
	log.Info().Msg("Server stopped successfully")
}

func newProvider(cfg *config.Config) (whatsapp.Provider, error) {
	switch cfg.WhatsAppProvider {
	case "mock":
		log.Warn().Msg("Using mock WhatsApp provider, outbound messages are not delivered")
		return whatsapp.NewMockProvider(), nil
	case "cloud":
		cloud, err := whatsapp.NewCloudProvider(httputil.NewDefaultRestyClient(15*time.Second, false), cfg.WhatsAppAPIURL, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken)
		if err != nil {
			return nil, err
		}
		return cloud, nil
	default:
		return nil, errors.New("unknown WHATSAPP_PROVIDER " + cfg.WhatsAppProvider)
	}
}
