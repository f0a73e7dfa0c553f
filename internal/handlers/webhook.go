package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"whatsapp-helpdesk/internal/adapters/whatsapp"
	"whatsapp-helpdesk/internal/services"
)

const maxWebhookBody = 1 << 20

// InboundProcessor runs one normalized inbound message through the helpdesk pipeline.
type InboundProcessor interface {
	HandleInboundMessage(ctx context.Context, in services.InboundMessage) (*services.InboundResult, error)
}

// WebhookHandler receives WhatsApp webhooks.
type WebhookHandler struct {
	inbound         InboundProcessor
	verifyToken     string
	appSecret       string
	defaultTenantID string
}

// NewWebhookHandler creates a WebhookHandler. appSecret enables X-Hub-Signature-256
// validation; defaultTenantID receives provider batch payloads.
func NewWebhookHandler(inbound InboundProcessor, verifyToken, appSecret, defaultTenantID string) *WebhookHandler {
	return &WebhookHandler{
		inbound:         inbound,
		verifyToken:     verifyToken,
		appSecret:       appSecret,
		defaultTenantID: defaultTenantID,
	}
}

type webhookSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Verify answers the provider's subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		hlog.FromRequest(r).Warn().Str("mode", q.Get("hub.mode")).Msg("Webhook verification rejected")
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	hlog.FromRequest(r).Info().Msg("Webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

// Handle processes an inbound webhook in either the flat or the batch shape.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read webhook body")
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, r.Header.Get("X-Hub-Signature-256")) {
		logger.Warn().Msg("Invalid webhook signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	parsed, err := whatsapp.ParseWebhook(body, h.defaultTenantID)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected webhook payload")
		respond(w, r, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if parsed.Skipped > 0 {
		logger.Warn().Int("skipped", parsed.Skipped).Msg("Skipping non-text webhook messages")
	}

	// processing continues even if the provider hangs up
	ctx := context.WithoutCancel(r.Context())

	if parsed.Legacy {
		result, err := h.inbound.HandleInboundMessage(ctx, toInbound(parsed.Messages[0]))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond(w, r, http.StatusOK, result)
		return
	}

	summary := webhookSummary{Skipped: parsed.Skipped}
	for _, msg := range parsed.Messages {
		if _, err := h.inbound.HandleInboundMessage(ctx, toInbound(msg)); err != nil {
			// the provider retries whole batches, so failures are logged rather than returned
			logger.Error().Err(err).Str("from", msg.From).Str("externalID", msg.ExternalID).Msg("Failed to process inbound message")
			summary.Failed++
			continue
		}
		summary.Processed++
	}
	respond(w, r, http.StatusOK, summary)
}

func (h *WebhookHandler) validSignature(body []byte, header string) bool {
	if h.appSecret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func toInbound(m whatsapp.InboundText) services.InboundMessage {
	return services.InboundMessage{
		TenantID:   m.TenantID,
		From:       m.From,
		Name:       m.Name,
		Body:       m.Body,
		ExternalID: m.ExternalID,
	}
}
