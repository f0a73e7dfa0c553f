package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

// ConversationService owns conversation lifecycle: creation, status transitions,
// manual assignment, lead status and internal notes.
type ConversationService struct {
	db                *gorm.DB
	broadcaster       realtime.Broadcaster
	defaultLeadStatus string
}

// NewConversationService creates a new ConversationService.
func NewConversationService(db *gorm.DB, broadcaster realtime.Broadcaster, defaultLeadStatus string) (*ConversationService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if broadcaster == nil {
		broadcaster = realtime.Nop{}
	}
	return &ConversationService{db: db, broadcaster: broadcaster, defaultLeadStatus: defaultLeadStatus}, nil
}

// MessageSummary is the trimmed last message carried in conversation snapshots.
type MessageSummary struct {
	ID        string                  `json:"id"`
	Body      string                  `json:"body"`
	Direction models.MessageDirection `json:"direction"`
	CreatedAt time.Time               `json:"createdAt"`
}

// ConversationSnapshot is a conversation with its contact, assigned agent and most
// recent message, as pushed to realtime subscribers.
type ConversationSnapshot struct {
	models.Conversation
	Messages []MessageSummary `json:"messages"`
}

type ConversationFilter struct {
	Status  models.ConversationStatus
	AgentID string
	Page    int
	Limit   int
}

// FindOpen returns the contact's non-resolved conversation, or nil when there is none.
func (s *ConversationService) FindOpen(ctx context.Context, tenantID, contactID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND contact_id = ? AND status <> ?", tenantID, contactID, models.StatusResolved).
		Order("last_message_at DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Str("contactID", contactID).Msg("Error querying open conversation")
		return nil, fmt.Errorf("error querying open conversation: %w", err)
	}
	return &conv, nil
}

// Create opens a new conversation for the contact with the default lead status.
func (s *ConversationService) Create(ctx context.Context, tenantID, contactID string) (*models.Conversation, error) {
	conv := &models.Conversation{
		TenantID:      tenantID,
		ContactID:     contactID,
		Channel:       models.ChannelWhatsApp,
		Status:        models.StatusOpen,
		LeadStatus:    models.StringPtr(s.defaultLeadStatus),
		LastMessageAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Str("contactID", contactID).Msg("Failed to create conversation")
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	log.Info().Str("tenantID", tenantID).Str("conversationID", conv.ID).Str("contactID", contactID).Msg("Created conversation")
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, tenantID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Contact").
		Preload("AssignedAgent").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&conv).Error
	if err != nil {
		return nil, loadErr("conversation", id, err)
	}
	return &conv, nil
}

// Snapshot loads the conversation with the summary of its most recent message.
func (s *ConversationService) Snapshot(ctx context.Context, tenantID, id string) (*ConversationSnapshot, error) {
	conv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	snaps, err := s.withLastMessages(ctx, []models.Conversation{*conv})
	if err != nil {
		return nil, err
	}
	return &snaps[0], nil
}

func (s *ConversationService) withLastMessages(ctx context.Context, convs []models.Conversation) ([]ConversationSnapshot, error) {
	snaps := make([]ConversationSnapshot, len(convs))
	for i, conv := range convs {
		snaps[i] = ConversationSnapshot{Conversation: conv, Messages: []MessageSummary{}}
		var msg models.Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").Order("id DESC").
			First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load last message of conversation %s: %w", conv.ID, err)
		}
		snaps[i].Messages = append(snaps[i].Messages, MessageSummary{
			ID: msg.ID, Body: msg.Body, Direction: msg.Direction, CreatedAt: msg.CreatedAt,
		})
	}
	return snaps, nil
}

// List pages through the tenant's conversations by recency.
func (s *ConversationService) List(ctx context.Context, tenantID string, filter ConversationFilter) (*Page[ConversationSnapshot], error) {
	page, limit, offset := normalizePage(filter.Page, filter.Limit)
	q := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, validationErr("unknown conversation status %q", filter.Status)
		}
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AgentID != "" {
		q = q.Where("assigned_agent_id = ?", filter.AgentID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	var convs []models.Conversation
	err := q.Preload("Contact").Preload("AssignedAgent").
		Order("last_message_at DESC").Offset(offset).Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	snaps, err := s.withLastMessages(ctx, convs)
	if err != nil {
		return nil, err
	}
	return &Page[ConversationSnapshot]{Data: snaps, Total: total, Page: page, Limit: limit}, nil
}

// UpdateStatus moves a conversation to status. Setting the current status again is an
// invalid transition, except RESOLVED -> OPEN which is always allowed.
func (s *ConversationService) UpdateStatus(ctx context.Context, tenantID, id string, status models.ConversationStatus) (*models.Conversation, error) {
	if !status.Valid() {
		return nil, validationErr("unknown conversation status %q", status)
	}
	conv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(conv.Status, status); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("status", status).Error; err != nil {
		log.Error().Err(err).Str("conversationID", id).Msg("Failed to update conversation status")
		return nil, fmt.Errorf("failed to update conversation status: %w", err)
	}
	log.Info().Str("tenantID", tenantID).Str("conversationID", id).Str("from", string(conv.Status)).Str("to", string(status)).Msg("Conversation status changed")
	return s.afterChange(ctx, tenantID, id)
}

func checkTransition(from, to models.ConversationStatus) error {
	if from == models.StatusResolved && to == models.StatusOpen {
		return nil
	}
	if from == to {
		return fmt.Errorf("conversation already %s: %w", to, ErrInvalidTransition)
	}
	return nil
}

// Assign binds the conversation to agentID, or unassigns it when agentID is nil.
// The agent must belong to the tenant.
func (s *ConversationService) Assign(ctx context.Context, tenantID, id string, agentID *string) (*models.Conversation, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if agentID != nil && *agentID == "" {
		agentID = nil
	}
	if agentID != nil {
		var agent models.User
		if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", *agentID, tenantID).First(&agent).Error; err != nil {
			return nil, loadErr("agent", *agentID, err)
		}
	}

	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("assigned_agent_id", agentID).Error; err != nil {
		log.Error().Err(err).Str("conversationID", id).Msg("Failed to assign conversation")
		return nil, fmt.Errorf("failed to assign conversation: %w", err)
	}

	s.broadcaster.Broadcast(tenantID, realtime.EventConversationAssigned, map[string]interface{}{
		"conversationId": id,
		"agentId":        agentID,
	})
	return s.afterChange(ctx, tenantID, id)
}

// UpdateLeadStatus sets the lead status, which must name an active lead status of the tenant.
func (s *ConversationService) UpdateLeadStatus(ctx context.Context, tenantID, id, leadStatus string) (*models.Conversation, error) {
	leadStatus = strings.TrimSpace(leadStatus)
	if leadStatus == "" {
		return nil, validationErr("lead status is required")
	}
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if err := ensureActiveLeadStatus(ctx, s.db, tenantID, leadStatus); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("lead_status", leadStatus).Error; err != nil {
		log.Error().Err(err).Str("conversationID", id).Msg("Failed to update lead status")
		return nil, fmt.Errorf("failed to update lead status: %w", err)
	}
	return s.afterChange(ctx, tenantID, id)
}

func ensureActiveLeadStatus(ctx context.Context, db *gorm.DB, tenantID, name string) error {
	var count int64
	err := db.WithContext(ctx).Model(&models.CustomLeadStatus{}).
		Where("tenant_id = ? AND name = ? AND is_active = ?", tenantID, name, true).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check lead status: %w", err)
	}
	if count == 0 {
		return validationErr("lead status %q is not an active status", name)
	}
	return nil
}

// afterChange reloads the conversation and pushes the fresh snapshot to subscribers.
func (s *ConversationService) afterChange(ctx context.Context, tenantID, id string) (*models.Conversation, error) {
	snap, err := s.Snapshot(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Broadcast(tenantID, realtime.EventConversationUpdated, snap)
	return &snap.Conversation, nil
}

// AddNote attaches an internal note. Automation writes notes as models.SystemUserID.
func (s *ConversationService) AddNote(ctx context.Context, tenantID, conversationID, userID, content string) (*models.ConversationNote, error) {
	if strings.TrimSpace(content) == "" {
		return nil, validationErr("note content is required")
	}
	if _, err := s.Get(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	note := &models.ConversationNote{
		TenantID:       tenantID,
		ConversationID: conversationID,
		UserID:         userID,
		Content:        content,
	}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		log.Error().Err(err).Str("conversationID", conversationID).Msg("Failed to add note")
		return nil, fmt.Errorf("failed to add note: %w", err)
	}
	return note, nil
}

func (s *ConversationService) ListNotes(ctx context.Context, tenantID, conversationID string) ([]models.ConversationNote, error) {
	if _, err := s.Get(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	var notes []models.ConversationNote
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND tenant_id = ?", conversationID, tenantID).
		Order("created_at ASC").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}
