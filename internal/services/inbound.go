package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"whatsapp-helpdesk/internal/adapters/whatsapp"
	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

// MessageHook is notified after every inbound message is persisted. Implementations
// must return without waiting for their own work.
type MessageHook interface {
	OnNewMessage(tenantID, conversationID, body string, isFirstMessage bool)
}

// InboundService ties the inbound channel to contacts, conversations, assignment and
// automation. It also owns the outbound send path.
type InboundService struct {
	contacts      *ContactService
	conversations *ConversationService
	messages      *MessageService
	assignment    *AssignmentService
	hook          MessageHook
	provider      whatsapp.Provider
	broadcaster   realtime.Broadcaster
	locks         *KeyedMutex
}

// NewInboundService creates a new InboundService. hook may be nil.
func NewInboundService(
	contacts *ContactService,
	conversations *ConversationService,
	messages *MessageService,
	assignment *AssignmentService,
	hook MessageHook,
	provider whatsapp.Provider,
	broadcaster realtime.Broadcaster,
	locks *KeyedMutex,
) (*InboundService, error) {
	if contacts == nil || conversations == nil || messages == nil || assignment == nil {
		return nil, fmt.Errorf("contact, conversation, message and assignment services are required")
	}
	if provider == nil {
		return nil, fmt.Errorf("WhatsApp provider cannot be nil")
	}
	if broadcaster == nil {
		broadcaster = realtime.Nop{}
	}
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &InboundService{
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		assignment:    assignment,
		hook:          hook,
		provider:      provider,
		broadcaster:   broadcaster,
		locks:         locks,
	}, nil
}

type InboundMessage struct {
	TenantID   string
	From       string
	Name       string
	Body       string
	ExternalID string
}

// InboundResult is what one inbound message produced.
type InboundResult struct {
	Message         *models.Message       `json:"message"`
	Conversation    *ConversationSnapshot `json:"conversation"`
	Contact         *models.Contact       `json:"contact"`
	NewConversation bool                  `json:"newConversation"`
	AssignedAgentID string                `json:"assignedAgentId,omitempty"`
}

// HandleInboundMessage runs one inbound message through the pipeline: contact, open
// conversation, message, auto-assignment of new conversations, automation hook and
// realtime broadcast.
func (s *InboundService) HandleInboundMessage(ctx context.Context, in InboundMessage) (*InboundResult, error) {
	if in.TenantID == "" {
		return nil, validationErr("tenantId is required")
	}
	phone := strings.TrimSpace(in.From)
	if phone == "" {
		return nil, validationErr("sender phone is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, validationErr("message body is required")
	}

	logger := log.With().Str("tenantID", in.TenantID).Str("from", phone).Str("externalID", in.ExternalID).Logger()
	logger.Info().Msg("Processing inbound message")

	contact, err := s.contacts.FindOrCreate(ctx, in.TenantID, phone, in.Name)
	if err != nil {
		return nil, err
	}

	conv, created, err := s.openConversation(ctx, in.TenantID, contact.ID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, NewMessage{
		TenantID:       in.TenantID,
		ConversationID: conv.ID,
		Direction:      models.DirectionInbound,
		Body:           in.Body,
		ExternalID:     in.ExternalID,
	})
	if err != nil {
		return nil, err
	}

	result := &InboundResult{Message: msg, Contact: contact, NewConversation: created}
	if created {
		agentID, assigned, err := s.assignment.AutoAssign(ctx, in.TenantID, conv.ID)
		if err != nil {
			// the message is already stored; an unassigned conversation stays in the queue
			logger.Error().Err(err).Str("conversationID", conv.ID).Msg("Auto-assignment failed")
		} else if assigned {
			result.AssignedAgentID = agentID
		}
	}

	if s.hook != nil {
		count, err := s.messages.CountInConversation(ctx, conv.ID)
		if err != nil {
			logger.Error().Err(err).Str("conversationID", conv.ID).Msg("Failed to count messages for automation")
		} else {
			s.hook.OnNewMessage(in.TenantID, conv.ID, in.Body, count == 1)
		}
	}

	snapshot, err := s.conversations.Snapshot(ctx, in.TenantID, conv.ID)
	if err != nil {
		return nil, err
	}
	result.Conversation = snapshot

	s.broadcaster.Broadcast(in.TenantID, realtime.EventMessageNew, msg)
	s.broadcaster.Broadcast(in.TenantID, realtime.EventConversationUpdated, snapshot)

	logger.Info().
		Str("conversationID", conv.ID).
		Str("messageID", msg.ID).
		Bool("newConversation", created).
		Str("assignedAgentID", result.AssignedAgentID).
		Msg("Inbound message processed")
	return result, nil
}

// openConversation finds the contact's non-resolved conversation or creates one.
// Serialized per contact so two messages cannot open two conversations.
func (s *InboundService) openConversation(ctx context.Context, tenantID, contactID string) (*models.Conversation, bool, error) {
	unlock := s.locks.Lock("contact:" + tenantID + ":" + contactID)
	defer unlock()

	conv, err := s.conversations.FindOpen(ctx, tenantID, contactID)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		return conv, false, nil
	}
	conv, err = s.conversations.Create(ctx, tenantID, contactID)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// SendOutbound delivers an agent reply through the provider and stores it. Nothing is
// stored when the provider fails.
func (s *InboundService) SendOutbound(ctx context.Context, tenantID, conversationID, body, senderID string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validationErr("message body is required")
	}
	conv, err := s.conversations.Get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Contact == nil {
		return nil, fmt.Errorf("conversation %s has no contact: %w", conversationID, ErrNotFound)
	}

	sent, err := s.provider.Send(ctx, whatsapp.OutboundMessage{To: conv.Contact.Phone, Body: body})
	if err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Str("conversationID", conversationID).Msg("Outbound send failed")
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	msg, err := s.messages.Create(ctx, NewMessage{
		TenantID:       tenantID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Direction:      models.DirectionOutbound,
		Body:           body,
		ExternalID:     sent.ExternalID,
	})
	if err != nil {
		return nil, err
	}
	s.broadcaster.Broadcast(tenantID, realtime.EventMessageNew, msg)
	return msg, nil
}
