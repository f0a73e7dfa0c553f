package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

// AssignmentService evaluates assignment rules and picks agents for new conversations.
type AssignmentService struct {
	db          *gorm.DB
	cache       *TenantCache
	locks       *KeyedMutex
	broadcaster realtime.Broadcaster
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(db *gorm.DB, cache *TenantCache, locks *KeyedMutex, broadcaster realtime.Broadcaster) (*AssignmentService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if broadcaster == nil {
		broadcaster = realtime.Nop{}
	}
	return &AssignmentService{db: db, cache: cache, locks: locks, broadcaster: broadcaster}, nil
}

// AgentLoad is a candidate agent with the number of conversations it currently holds.
type AgentLoad struct {
	models.User
	OpenConversations int64 `json:"openConversations"`
}

// HasCapacity reports whether the agent can take another conversation.
func (a AgentLoad) HasCapacity() bool {
	return a.OpenConversations < int64(a.MaxOpenConvo)
}

// SelectLeastLoaded returns the eligible candidate with the fewest open conversations.
// Ties keep candidate order. Returns nil when every candidate is at capacity.
func SelectLeastLoaded(candidates []AgentLoad) *AgentLoad {
	var best *AgentLoad
	for i := range candidates {
		c := &candidates[i]
		if !c.HasCapacity() {
			continue
		}
		if best == nil || c.OpenConversations < best.OpenConversations {
			best = c
		}
	}
	return best
}

// AutoAssign runs the tenant's active rules against the conversation. The first rule
// whose conditions match decides the outcome; later rules are not consulted even when
// that rule finds no agent.
func (s *AssignmentService) AutoAssign(ctx context.Context, tenantID, conversationID string) (string, bool, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Contact").
		Where("id = ? AND tenant_id = ?", conversationID, tenantID).
		First(&conv).Error
	if err != nil {
		return "", false, loadErr("conversation", conversationID, err)
	}

	rules, err := s.activeRules(ctx, tenantID)
	if err != nil {
		return "", false, err
	}

	var tags []string
	if conv.Contact != nil {
		tags = conv.Contact.Tags
	}

	for _, rule := range rules {
		if !rule.Conditions.Data().Matches(tags, conv.Channel) {
			continue
		}
		logger := log.With().
			Str("tenantID", tenantID).
			Str("conversationID", conversationID).
			Str("ruleID", rule.ID).
			Str("rule", rule.Name).
			Logger()

		if rule.Strategy == models.StrategyManual {
			logger.Info().Msg("Matched manual assignment rule, leaving conversation unassigned")
			return "", false, nil
		}

		agentID, err := s.assignLeastLoaded(ctx, tenantID, conversationID, rule.TeamID)
		if err != nil {
			return "", false, err
		}
		if agentID == "" {
			logger.Warn().Msg("No available agent with capacity for matched rule")
			return "", false, nil
		}
		logger.Info().Str("agentID", agentID).Msg("Conversation auto-assigned")
		s.broadcaster.Broadcast(tenantID, realtime.EventConversationAssigned, map[string]interface{}{
			"conversationId": conversationID,
			"agentId":        agentID,
			"ruleId":         rule.ID,
		})
		return agentID, true, nil
	}

	log.Info().Str("tenantID", tenantID).Str("conversationID", conversationID).Int("rules", len(rules)).Msg("No assignment rule matched")
	return "", false, nil
}

// assignLeastLoaded checks capacity and binds under the tenant's assignment lock so
// two inbound events cannot both take an agent's last slot.
func (s *AssignmentService) assignLeastLoaded(ctx context.Context, tenantID, conversationID string, teamID *string) (string, error) {
	unlock := s.locks.Lock("assign:" + tenantID)
	defer unlock()

	agent, err := s.FindAvailableAgent(ctx, tenantID, teamID)
	if err != nil || agent == nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", conversationID, tenantID).
		Update("assigned_agent_id", agent.ID).Error; err != nil {
		log.Error().Err(err).Str("conversationID", conversationID).Str("agentID", agent.ID).Msg("Failed to bind agent to conversation")
		return "", fmt.Errorf("failed to assign conversation: %w", err)
	}
	return agent.ID, nil
}

// FindAvailableAgent returns the ONLINE agent or admin with the fewest open
// conversations below capacity, optionally restricted to a team. Nil when none qualifies.
func (s *AssignmentService) FindAvailableAgent(ctx context.Context, tenantID string, teamID *string) (*models.User, error) {
	loads, err := s.Candidates(ctx, tenantID, teamID)
	if err != nil {
		return nil, err
	}
	best := SelectLeastLoaded(loads)
	if best == nil {
		return nil, nil
	}
	user := best.User
	return &user, nil
}

// Candidates lists ONLINE agents and admins, oldest first, with their open conversation counts.
func (s *AssignmentService) Candidates(ctx context.Context, tenantID string, teamID *string) ([]AgentLoad, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND availability = ? AND role IN ?", tenantID, models.AvailabilityOnline,
			[]string{string(models.RoleAgent), string(models.RoleAdmin)})
	if teamID != nil && *teamID != "" {
		q = q.Where("id IN (?)", s.db.Model(&models.TeamMember{}).Select("user_id").Where("team_id = ?", *teamID))
	}
	var users []models.User
	if err := q.Order("created_at ASC").Order("id ASC").Find(&users).Error; err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to load candidate agents")
		return nil, fmt.Errorf("failed to load candidate agents: %w", err)
	}
	return openLoads(ctx, s.db, tenantID, users)
}

type agentOpenCount struct {
	AssignedAgentID string
	OpenCount       int64
}

// openLoads pairs each user with its count of non-resolved assigned conversations.
func openLoads(ctx context.Context, db *gorm.DB, tenantID string, users []models.User) ([]AgentLoad, error) {
	loads := make([]AgentLoad, len(users))
	if len(users) == 0 {
		return loads, nil
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	var counts []agentOpenCount
	err := db.WithContext(ctx).Model(&models.Conversation{}).
		Select("assigned_agent_id, COUNT(*) AS open_count").
		Where("tenant_id = ? AND assigned_agent_id IN ? AND status <> ?", tenantID, ids, models.StatusResolved).
		Group("assigned_agent_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count open conversations: %w", err)
	}
	byAgent := make(map[string]int64, len(counts))
	for _, c := range counts {
		byAgent[c.AssignedAgentID] = c.OpenCount
	}
	for i, u := range users {
		loads[i] = AgentLoad{User: u, OpenConversations: byAgent[u.ID]}
	}
	return loads, nil
}

func (s *AssignmentService) activeRules(ctx context.Context, tenantID string) ([]models.AssignmentRule, error) {
	rules, gen, ok := s.cache.rules(tenantID)
	if ok {
		return rules, nil
	}
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("priority DESC").Order("created_at ASC").Order("id ASC").
		Find(&rules).Error
	if err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to load assignment rules")
		return nil, fmt.Errorf("failed to load assignment rules: %w", err)
	}
	s.cache.setRules(tenantID, gen, rules)
	return rules, nil
}

type RuleInput struct {
	Name       string                    `json:"name"`
	Priority   int                       `json:"priority"`
	Strategy   models.AssignmentStrategy `json:"strategy"`
	IsActive   *bool                     `json:"isActive"`
	Conditions models.RuleConditions     `json:"conditions"`
	TeamID     *string                   `json:"teamId"`
}

type RuleUpdate struct {
	Name       *string                    `json:"name"`
	Priority   *int                       `json:"priority"`
	Strategy   *models.AssignmentStrategy `json:"strategy"`
	IsActive   *bool                      `json:"isActive"`
	Conditions *models.RuleConditions     `json:"conditions"`
	TeamID     *string                    `json:"teamId"`
}

// ListRules returns every rule of the tenant in evaluation order.
func (s *AssignmentService) ListRules(ctx context.Context, tenantID string) ([]models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("priority DESC").Order("created_at ASC").Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment rules: %w", err)
	}
	return rules, nil
}

func (s *AssignmentService) CreateRule(ctx context.Context, tenantID string, in RuleInput) (*models.AssignmentRule, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationErr("rule name is required")
	}
	if in.Strategy == "" {
		in.Strategy = models.StrategyRoundRobin
	}
	if !in.Strategy.Valid() {
		return nil, validationErr("unknown assignment strategy %q", in.Strategy)
	}
	if err := s.checkTeam(ctx, tenantID, in.TeamID); err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	rule := &models.AssignmentRule{
		TenantID:   tenantID,
		Name:       strings.TrimSpace(in.Name),
		Priority:   in.Priority,
		Strategy:   in.Strategy,
		IsActive:   active,
		Conditions: datatypes.NewJSONType(in.Conditions),
		TeamID:     emptyToNil(in.TeamID),
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to create assignment rule")
		return nil, fmt.Errorf("failed to create assignment rule: %w", err)
	}
	s.cache.InvalidateRules(tenantID)
	return rule, nil
}

func (s *AssignmentService) UpdateRule(ctx context.Context, tenantID, id string, in RuleUpdate) (*models.AssignmentRule, error) {
	rule, err := s.getRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationErr("rule name is required")
		}
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Priority != nil {
		updates["priority"] = *in.Priority
	}
	if in.Strategy != nil {
		if !in.Strategy.Valid() {
			return nil, validationErr("unknown assignment strategy %q", *in.Strategy)
		}
		updates["strategy"] = *in.Strategy
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.Conditions != nil {
		updates["conditions"] = datatypes.NewJSONType(*in.Conditions)
	}
	if in.TeamID != nil {
		if err := s.checkTeam(ctx, tenantID, in.TeamID); err != nil {
			return nil, err
		}
		updates["team_id"] = emptyToNil(in.TeamID)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
			log.Error().Err(err).Str("ruleID", id).Msg("Failed to update assignment rule")
			return nil, fmt.Errorf("failed to update assignment rule: %w", err)
		}
		s.cache.InvalidateRules(tenantID)
	}
	return s.getRule(ctx, tenantID, id)
}

func (s *AssignmentService) DeleteRule(ctx context.Context, tenantID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.AssignmentRule{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete assignment rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("assignment rule %s: %w", id, ErrNotFound)
	}
	s.cache.InvalidateRules(tenantID)
	return nil
}

func (s *AssignmentService) getRule(ctx context.Context, tenantID, id string) (*models.AssignmentRule, error) {
	var rule models.AssignmentRule
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&rule).Error; err != nil {
		return nil, loadErr("assignment rule", id, err)
	}
	return &rule, nil
}

func (s *AssignmentService) checkTeam(ctx context.Context, tenantID string, teamID *string) error {
	if teamID == nil || *teamID == "" {
		return nil
	}
	var team models.Team
	if err := s.db.WithContext(ctx).Select("id").Where("id = ? AND tenant_id = ?", *teamID, tenantID).First(&team).Error; err != nil {
		return loadErr("team", *teamID, err)
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
