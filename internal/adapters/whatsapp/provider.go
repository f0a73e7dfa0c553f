// Package whatsapp holds the WhatsApp channel boundary: webhook payload normalization
// and outbound message providers.
package whatsapp

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// OutboundMessage is a text message to deliver to a phone number.
type OutboundMessage struct {
	To   string
	Body string
}

// SendResult carries the provider's id for a delivered message.
type SendResult struct {
	ExternalID string `json:"externalId"`
}

// Provider sends outbound messages through a WhatsApp channel.
type Provider interface {
	Send(ctx context.Context, msg OutboundMessage) (*SendResult, error)
}

// MockProvider logs messages and returns synthetic ids. It never fails.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	id := fmt.Sprintf("mock_%d_%06d", time.Now().UnixNano(), rand.Intn(1000000))
	log.Info().Str("to", msg.To).Str("externalID", id).Int("bodyLength", len(msg.Body)).Msg("Mock WhatsApp provider: message sent")
	return &SendResult{ExternalID: id}, nil
}
