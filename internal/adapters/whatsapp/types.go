package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookPayload accepts both the legacy flat body and the provider's batch body.
// Flat: {"tenantId","from","name","body","externalId"}.
// Batch: {"object","entry":[{"changes":[{"value":{"contacts":[...],"messages":[...]}}]}]}.
type WebhookPayload struct {
	// flat shape
	TenantID   string `json:"tenantId,omitempty"`
	From       string `json:"from,omitempty"`
	Name       string `json:"name,omitempty"`
	Body       string `json:"body,omitempty"`
	ExternalID string `json:"externalId,omitempty"`

	// batch shape
	Object string  `json:"object,omitempty"`
	Entry  []Entry `json:"entry,omitempty"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []ProfileContact `json:"contacts,omitempty"`
	Messages         []CloudMessage   `json:"messages,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type ProfileContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type CloudMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// InboundText is one normalized inbound text message.
type InboundText struct {
	TenantID   string
	From       string
	Name       string
	Body       string
	ExternalID string
}

// ParsedWebhook is the result of normalizing a webhook body.
type ParsedWebhook struct {
	// Legacy is true when the body used the flat shape.
	Legacy   bool
	Messages []InboundText
	// Skipped counts non-text messages that were ignored.
	Skipped int
}

// ParseWebhook normalizes a webhook body. Batch payloads are attributed to
// defaultTenantID; only text messages are kept.
func ParseWebhook(raw []byte, defaultTenantID string) (*ParsedWebhook, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	if payload.From != "" || payload.TenantID != "" {
		if payload.TenantID == "" || payload.From == "" || payload.Body == "" {
			return nil, fmt.Errorf("flat webhook payload requires tenantId, from and body")
		}
		return &ParsedWebhook{
			Legacy: true,
			Messages: []InboundText{{
				TenantID:   payload.TenantID,
				From:       payload.From,
				Name:       payload.Name,
				Body:       payload.Body,
				ExternalID: payload.ExternalID,
			}},
		}, nil
	}

	parsed := &ParsedWebhook{}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
					parsed.Skipped++
					continue
				}
				parsed.Messages = append(parsed.Messages, InboundText{
					TenantID:   defaultTenantID,
					From:       m.From,
					Name:       names[m.From],
					Body:       m.Text.Body,
					ExternalID: m.ID,
				})
			}
		}
	}
	if len(parsed.Messages) > 0 && defaultTenantID == "" {
		return nil, fmt.Errorf("batch webhook received but no tenant is configured for it")
	}
	return parsed, nil
}
