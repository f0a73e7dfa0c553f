package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-helpdesk/internal/models"
)

// MessageService appends messages and keeps conversation recency current.
type MessageService struct {
	db *gorm.DB
}

// NewMessageService creates a new MessageService.
func NewMessageService(db *gorm.DB) (*MessageService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &MessageService{db: db}, nil
}

type NewMessage struct {
	TenantID       string
	ConversationID string
	SenderID       string
	Direction      models.MessageDirection
	Body           string
	ExternalID     string
}

// Create persists the message and advances the conversation's lastMessageAt in one
// transaction. lastMessageAt never moves backwards.
func (s *MessageService) Create(ctx context.Context, in NewMessage) (*models.Message, error) {
	if in.Direction != models.DirectionInbound && in.Direction != models.DirectionOutbound {
		return nil, validationErr("unknown message direction %q", in.Direction)
	}
	msg := &models.Message{
		TenantID:       in.TenantID,
		ConversationID: in.ConversationID,
		SenderID:       models.StringPtr(in.SenderID),
		Direction:      in.Direction,
		Body:           in.Body,
		ExternalID:     models.StringPtr(in.ExternalID),
		Status:         models.MessageSent,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return advanceLastMessageAt(tx, in.ConversationID, msg.CreatedAt)
	})
	if err != nil {
		log.Error().Err(err).
			Str("tenantID", in.TenantID).
			Str("conversationID", in.ConversationID).
			Str("direction", string(in.Direction)).
			Msg("Failed to persist message")
		return nil, err
	}

	log.Info().
		Str("tenantID", in.TenantID).
		Str("conversationID", in.ConversationID).
		Str("messageID", msg.ID).
		Str("direction", string(in.Direction)).
		Msg("Message stored")
	return msg, nil
}

// advanceLastMessageAt moves lastMessageAt forward, never back. The comparison happens
// in Go: sqlite stores timestamps as text, where "...05Z" sorts after "...05.5Z".
func advanceLastMessageAt(tx *gorm.DB, conversationID string, at time.Time) error {
	var conv models.Conversation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "last_message_at").
		Where("id = ?", conversationID).
		First(&conv).Error; err != nil {
		return loadErr("conversation", conversationID, err)
	}
	if !at.After(conv.LastMessageAt) {
		return nil
	}
	err := tx.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("last_message_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to advance lastMessageAt: %w", err)
	}
	return nil
}

// CountInConversation returns how many messages the conversation holds.
func (s *MessageService) CountInConversation(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// ListByConversation pages through a conversation's messages, oldest first.
func (s *MessageService) ListByConversation(ctx context.Context, tenantID, conversationID string, page, limit int) (*Page[models.Message], error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Select("id").Where("id = ? AND tenant_id = ?", conversationID, tenantID).First(&conv).Error; err != nil {
		return nil, loadErr("conversation", conversationID, err)
	}

	page, limit, offset := normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("conversation_id = ?", conversationID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	var msgs []models.Message
	if err := q.Preload("Sender").Order("created_at ASC").Order("id ASC").Offset(offset).Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return &Page[models.Message]{Data: msgs, Total: total, Page: page, Limit: limit}, nil
}
