package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
type Config struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string
	LogLevel       string
	LogFormat      string
	WebhookPath    string

	WhatsAppProvider      string // "mock" or "cloud"
	WhatsAppAPIURL        string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppTenantID      string // tenant that provider batch payloads belong to

	DefaultLeadStatus string

	RabbitMQURL            string
	RabbitMQQueuePrefix    string
	RabbitMQSpecificEvents []string

	CacheTTL                  time.Duration
	AutomationShutdownTimeout time.Duration
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("No .env file found or error loading it, relying on environment variables")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		Port:                  os.Getenv("PORT"),
		DatabaseDriver:        strings.ToLower(os.Getenv("DATABASE_DRIVER")),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		LogLevel:              os.Getenv("LOG_LEVEL"),
		LogFormat:             os.Getenv("LOG_FORMAT"),
		WebhookPath:           os.Getenv("WEBHOOK_PATH"),
		WhatsAppProvider:      strings.ToLower(os.Getenv("WHATSAPP_PROVIDER")),
		WhatsAppAPIURL:        os.Getenv("WHATSAPP_API_URL"),
		WhatsAppPhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppAccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppVerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		WhatsAppTenantID:      os.Getenv("WHATSAPP_TENANT_ID"),
		DefaultLeadStatus:     os.Getenv("DEFAULT_LEAD_STATUS"),
		RabbitMQURL:           os.Getenv("RABBITMQ_URL"),
		RabbitMQQueuePrefix:   os.Getenv("RABBITMQ_QUEUE_PREFIX"),
	}

	if v := os.Getenv("RABBITMQ_SPECIFIC_EVENTS"); v != "" {
		for _, event := range strings.Split(v, ",") {
			if event = strings.TrimSpace(event); event != "" {
				cfg.RabbitMQSpecificEvents = append(cfg.RabbitMQSpecificEvents, event)
			}
		}
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Info().Str("port", cfg.Port).Msg("PORT not set, using default")
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "sqlite"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "helpdesk.db"
		log.Info().Str("database_url", cfg.DatabaseURL).Msg("DATABASE_URL not set, using default")
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/api/webhooks/whatsapp"
		log.Info().Str("path", cfg.WebhookPath).Msg("WEBHOOK_PATH not set, using default")
	}
	if cfg.WhatsAppProvider == "" {
		cfg.WhatsAppProvider = "mock"
	}
	if cfg.WhatsAppAPIURL == "" {
		cfg.WhatsAppAPIURL = "https://graph.facebook.com/v18.0"
	}
	if cfg.DefaultLeadStatus == "" {
		cfg.DefaultLeadStatus = "New lead"
	}
	if cfg.RabbitMQQueuePrefix == "" {
		cfg.RabbitMQQueuePrefix = "helpdesk"
	}

	cfg.CacheTTL = secondsFromEnv("CACHE_TTL_SECONDS", 30)
	cfg.AutomationShutdownTimeout = secondsFromEnv("AUTOMATION_SHUTDOWN_TIMEOUT_SECONDS", 30)

	log.Info().
		Str("databaseDriver", cfg.DatabaseDriver).
		Str("whatsappProvider", cfg.WhatsAppProvider).
		Bool("rabbitmq", cfg.RabbitMQURL != "").
		Msg("Configuration loading attempt complete.")
	return cfg, nil
}

func secondsFromEnv(key string, def int) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def) * time.Second
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Warn().Str("key", key).Str("value", raw).Int("default", def).Msg("Invalid duration in environment, using default")
		return time.Duration(def) * time.Second
	}
	return time.Duration(n) * time.Second
}
