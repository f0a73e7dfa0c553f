package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
)

// TeamService groups agents so assignment rules can target a subset of them.
type TeamService struct {
	db *gorm.DB
}

// NewTeamService creates a new TeamService.
func NewTeamService(db *gorm.DB) (*TeamService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &TeamService{db: db}, nil
}

func (s *TeamService) Create(ctx context.Context, tenantID, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErr("team name is required")
	}
	team := &models.Team{TenantID: tenantID, Name: name}
	if err := s.db.WithContext(ctx).Create(team).Error; err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to create team")
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return team, nil
}

func (s *TeamService) List(ctx context.Context, tenantID string) ([]models.Team, error) {
	var teams []models.Team
	if err := s.db.WithContext(ctx).
		Preload("Members.User").
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (s *TeamService) AddMember(ctx context.Context, tenantID, teamID, userID string) (*models.TeamMember, error) {
	if err := s.checkTeam(ctx, tenantID, teamID); err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id").Where("id = ? AND tenant_id = ?", userID, tenantID).First(&user).Error; err != nil {
		return nil, loadErr("user", userID, err)
	}
	member := &models.TeamMember{TeamID: teamID, UserID: userID}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s already in team %s: %w", userID, teamID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to add team member: %w", err)
	}
	log.Info().Str("teamID", teamID).Str("userID", userID).Msg("Team member added")
	return member, nil
}

func (s *TeamService) RemoveMember(ctx context.Context, tenantID, teamID, userID string) error {
	if err := s.checkTeam(ctx, tenantID, teamID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("team_id = ? AND user_id = ?", teamID, userID).Delete(&models.TeamMember{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove team member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s in team %s: %w", userID, teamID, ErrNotFound)
	}
	return nil
}

// Members lists the team's users in join order.
func (s *TeamService) Members(ctx context.Context, tenantID, teamID string) ([]models.User, error) {
	if err := s.checkTeam(ctx, tenantID, teamID); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.user_id = users.id").
		Where("team_members.team_id = ?", teamID).
		Order("team_members.created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	return users, nil
}

func (s *TeamService) checkTeam(ctx context.Context, tenantID, teamID string) error {
	var team models.Team
	if err := s.db.WithContext(ctx).Select("id").Where("id = ? AND tenant_id = ?", teamID, tenantID).First(&team).Error; err != nil {
		return loadErr("team", teamID, err)
	}
	return nil
}
