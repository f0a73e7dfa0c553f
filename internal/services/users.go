package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
	"whatsapp-helpdesk/internal/realtime"
)

// UserService manages agents: invitations, availability and capacity.
type UserService struct {
	db          *gorm.DB
	broadcaster realtime.Broadcaster
}

// NewUserService creates a new UserService.
func NewUserService(db *gorm.DB, broadcaster realtime.Broadcaster) (*UserService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	if broadcaster == nil {
		broadcaster = realtime.Nop{}
	}
	return &UserService{db: db, broadcaster: broadcaster}, nil
}

type InviteInput struct {
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	Role         models.UserRole `json:"role"`
	MaxOpenConvo *int            `json:"maxOpenConvo"`
}

// Invite adds a user to the tenant. New users start OFFLINE; emails are unique per tenant.
func (s *UserService) Invite(ctx context.Context, tenantID string, in InviteInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationErr("a valid email is required")
	}
	if in.Role == "" {
		in.Role = models.RoleAgent
	}
	if !in.Role.Valid() {
		return nil, validationErr("unknown role %q", in.Role)
	}
	capacity := models.DefaultMaxOpenConversations
	if in.MaxOpenConvo != nil {
		if *in.MaxOpenConvo < 0 {
			return nil, validationErr("maxOpenConvo must not be negative")
		}
		capacity = *in.MaxOpenConvo
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	user := &models.User{
		TenantID:     tenantID,
		Email:        email,
		Name:         name,
		Role:         in.Role,
		Availability: models.AvailabilityOffline,
		MaxOpenConvo: capacity,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", email, ErrConflict)
		}
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to invite user")
		return nil, fmt.Errorf("failed to invite user: %w", err)
	}
	log.Info().Str("tenantID", tenantID).Str("userID", user.ID).Str("role", string(user.Role)).Msg("User invited")
	return user, nil
}

func (s *UserService) Get(ctx context.Context, tenantID, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&user).Error; err != nil {
		return nil, loadErr("user", id, err)
	}
	return &user, nil
}

func (s *UserService) List(ctx context.Context, tenantID string) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListAvailable returns ONLINE users with their current open conversation counts.
func (s *UserService) ListAvailable(ctx context.Context, tenantID string) ([]AgentLoad, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND availability = ?", tenantID, models.AvailabilityOnline).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list available users: %w", err)
	}
	return openLoads(ctx, s.db, tenantID, users)
}

// UpdateAvailability changes the user's presence and notifies the tenant.
func (s *UserService) UpdateAvailability(ctx context.Context, tenantID, id string, availability models.Availability) (*models.User, error) {
	if !availability.Valid() {
		return nil, validationErr("unknown availability %q", availability)
	}
	user, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("availability", availability).Error; err != nil {
		log.Error().Err(err).Str("userID", id).Msg("Failed to update availability")
		return nil, fmt.Errorf("failed to update availability: %w", err)
	}
	user.Availability = availability
	log.Info().Str("tenantID", tenantID).Str("userID", id).Str("availability", string(availability)).Msg("Availability changed")
	s.broadcaster.Broadcast(tenantID, realtime.EventUserAvailability, map[string]interface{}{
		"userId":       id,
		"availability": availability,
	})
	return user, nil
}

// SetCapacity sets how many non-resolved conversations the agent may hold.
func (s *UserService) SetCapacity(ctx context.Context, tenantID, id string, maxOpen int) (*models.User, error) {
	if maxOpen < 0 {
		return nil, validationErr("maxOpenConvo must not be negative")
	}
	user, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("max_open_convo", maxOpen).Error; err != nil {
		return nil, fmt.Errorf("failed to update capacity: %w", err)
	}
	user.MaxOpenConvo = maxOpen
	return user, nil
}
