package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
)

const (
	leadStatusConnected  = "Connected"
	leadRecentMessageCap = 5
)

// Actor is the authenticated user a request acts on behalf of.
type Actor struct {
	ID   string
	Role models.UserRole
}

// canSee reports whether the actor may read or change a lead owned by agentID.
func (a Actor) canSee(agentID *string) bool {
	if a.Role.Elevated() {
		return true
	}
	return agentID != nil && *agentID == a.ID
}

// LeadService is the sales-pipeline view over conversations that carry a lead status.
// Agents only see leads assigned to them.
type LeadService struct {
	db                *gorm.DB
	sqlx              *sqlx.DB
	conversations     *ConversationService
	defaultLeadStatus string
}

// NewLeadService creates a new LeadService. driverName is the database/sql driver
// behind db, used by sqlx for bindvars.
func NewLeadService(db *gorm.DB, driverName string, conversations *ConversationService, defaultLeadStatus string) (*LeadService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if conversations == nil {
		return nil, fmt.Errorf("ConversationService cannot be nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	return &LeadService{
		db:                db,
		sqlx:              sqlx.NewDb(sqlDB, driverName),
		conversations:     conversations,
		defaultLeadStatus: defaultLeadStatus,
	}, nil
}

type LeadFilter struct {
	Search     string
	LeadStatus string
	AgentID    string
	Page       int
	Limit      int
}

// LeadDetail is a lead with its call history and latest messages.
type LeadDetail struct {
	models.Conversation
	CallLogs       []models.CallLog `json:"callLogs"`
	RecentMessages []models.Message `json:"recentMessages"`
}

type StageCount struct {
	Name  string `db:"name" json:"name"`
	Color string `db:"color" json:"color"`
	Count int64  `db:"total" json:"count"`
}

type LeadStats struct {
	Stages []StageCount `json:"stages"`
	Total  int64        `json:"total"`
}

type CallLogInput struct {
	Notes    string `json:"notes"`
	Outcome  string `json:"outcome"`
	Duration *int   `json:"duration"`
}

func (s *LeadService) List(ctx context.Context, tenantID string, actor Actor, filter LeadFilter) (*Page[models.Conversation], error) {
	page, limit, offset := normalizePage(filter.Page, filter.Limit)
	q := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("conversations.tenant_id = ? AND conversations.lead_status IS NOT NULL", tenantID)
	if !actor.Role.Elevated() {
		q = q.Where("conversations.assigned_agent_id = ?", actor.ID)
	} else if filter.AgentID != "" {
		q = q.Where("conversations.assigned_agent_id = ?", filter.AgentID)
	}
	if filter.LeadStatus != "" {
		q = q.Where("conversations.lead_status = ?", filter.LeadStatus)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		q = q.Joins("JOIN contacts ON contacts.id = conversations.contact_id").
			Where("(contacts.name LIKE ? OR contacts.phone LIKE ?)", like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}
	var leads []models.Conversation
	if err := q.Preload("Contact").Preload("AssignedAgent").
		Order("conversations.last_message_at DESC").
		Offset(offset).Limit(limit).
		Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return &Page[models.Conversation]{Data: leads, Total: total, Page: page, Limit: limit}, nil
}

func (s *LeadService) Get(ctx context.Context, tenantID, id string, actor Actor) (*LeadDetail, error) {
	conv, err := s.authorized(ctx, tenantID, id, actor)
	if err != nil {
		return nil, err
	}
	detail := &LeadDetail{Conversation: *conv}
	if err := s.db.WithContext(ctx).Preload("User").
		Where("conversation_id = ?", id).
		Order("created_at DESC").
		Find(&detail.CallLogs).Error; err != nil {
		return nil, fmt.Errorf("failed to load call logs: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at DESC").
		Limit(leadRecentMessageCap).
		Find(&detail.RecentMessages).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	return detail, nil
}

// Stats counts leads per active stage, in pipeline order.
func (s *LeadService) Stats(ctx context.Context, tenantID string, actor Actor) (*LeadStats, error) {
	query := `SELECT s.name AS name, s.color AS color, COUNT(c.id) AS total
		FROM custom_lead_statuses s
		LEFT JOIN conversations c ON c.tenant_id = s.tenant_id AND c.lead_status = s.name`
	args := []interface{}{}
	if !actor.Role.Elevated() {
		query += ` AND c.assigned_agent_id = ?`
		args = append(args, actor.ID)
	}
	query += ` WHERE s.tenant_id = ? AND s.is_active = ?
		GROUP BY s.name, s.color, s.sort_order
		ORDER BY s.sort_order ASC, s.name ASC`
	args = append(args, tenantID, true)

	stats := &LeadStats{Stages: []StageCount{}}
	if err := s.sqlx.SelectContext(ctx, &stats.Stages, s.sqlx.Rebind(query), args...); err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to compute lead stats")
		return nil, fmt.Errorf("failed to compute lead stats: %w", err)
	}
	for _, st := range stats.Stages {
		stats.Total += st.Count
	}
	return stats, nil
}

func (s *LeadService) UpdateStatus(ctx context.Context, tenantID, id, status string, actor Actor) (*models.Conversation, error) {
	if _, err := s.authorized(ctx, tenantID, id, actor); err != nil {
		return nil, err
	}
	return s.conversations.UpdateLeadStatus(ctx, tenantID, id, status)
}

// AddCallLog records a call. The first call on a lead still in the default status
// moves it to "Connected" when that stage exists.
func (s *LeadService) AddCallLog(ctx context.Context, tenantID, id string, actor Actor, in CallLogInput) (*models.CallLog, error) {
	conv, err := s.authorized(ctx, tenantID, id, actor)
	if err != nil {
		return nil, err
	}
	if in.Duration != nil && *in.Duration < 0 {
		return nil, validationErr("call duration must not be negative")
	}
	entry := &models.CallLog{
		TenantID:       tenantID,
		ConversationID: id,
		UserID:         actor.ID,
		Notes:          models.StringPtr(in.Notes),
		Outcome:        models.StringPtr(in.Outcome),
		Duration:       in.Duration,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Error().Err(err).Str("conversationID", id).Msg("Failed to create call log")
		return nil, fmt.Errorf("failed to create call log: %w", err)
	}

	if conv.LeadStatus != nil && *conv.LeadStatus == s.defaultLeadStatus {
		if err := ensureActiveLeadStatus(ctx, s.db, tenantID, leadStatusConnected); err != nil {
			log.Debug().Str("tenantID", tenantID).Msg("No active Connected stage, lead status left unchanged")
		} else if _, err := s.conversations.UpdateLeadStatus(ctx, tenantID, id, leadStatusConnected); err != nil {
			log.Warn().Err(err).Str("conversationID", id).Msg("Failed to advance lead after call")
		}
	}
	return entry, nil
}

// Reassign hands a lead to another agent. Only owners and admins may reassign.
func (s *LeadService) Reassign(ctx context.Context, tenantID, id, agentID string, actor Actor) (*models.Conversation, error) {
	if !actor.Role.Elevated() {
		return nil, fmt.Errorf("reassigning leads: %w", ErrForbidden)
	}
	if agentID == "" {
		return nil, validationErr("agentId is required")
	}
	return s.conversations.Assign(ctx, tenantID, id, &agentID)
}

func (s *LeadService) authorized(ctx context.Context, tenantID, id string, actor Actor) (*models.Conversation, error) {
	conv, err := s.conversations.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(conv.AssignedAgentID) {
		return nil, fmt.Errorf("lead %s: %w", id, ErrForbidden)
	}
	return conv, nil
}
