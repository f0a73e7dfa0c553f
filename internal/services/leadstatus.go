package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
)

// LeadStatusService manages the tenant's custom lead pipeline stages.
type LeadStatusService struct {
	db *gorm.DB
}

// NewLeadStatusService creates a new LeadStatusService.
func NewLeadStatusService(db *gorm.DB) (*LeadStatusService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &LeadStatusService{db: db}, nil
}

type LeadStatusInput struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder *int   `json:"sortOrder"`
}

type LeadStatusUpdate struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	SortOrder *int    `json:"sortOrder"`
	IsActive  *bool   `json:"isActive"`
}

// List returns the tenant's statuses in pipeline order.
func (s *LeadStatusService) List(ctx context.Context, tenantID string, includeInactive bool) ([]models.CustomLeadStatus, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var statuses []models.CustomLeadStatus
	if err := q.Order("sort_order ASC").Order("created_at ASC").Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to list lead statuses: %w", err)
	}
	return statuses, nil
}

// Create adds a status at the end of the pipeline unless a sort order is given.
func (s *LeadStatusService) Create(ctx context.Context, tenantID string, in LeadStatusInput) (*models.CustomLeadStatus, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationErr("lead status name is required")
	}
	color := in.Color
	if color == "" {
		color = models.DefaultLeadStatusColor
	}

	status := &models.CustomLeadStatus{TenantID: tenantID, Name: name, Color: color, IsActive: true}
	if in.SortOrder != nil {
		status.SortOrder = *in.SortOrder
	} else {
		var maxOrder sql.NullInt64
		if err := s.db.WithContext(ctx).Model(&models.CustomLeadStatus{}).
			Where("tenant_id = ?", tenantID).
			Select("MAX(sort_order)").
			Row().Scan(&maxOrder); err != nil {
			return nil, fmt.Errorf("failed to compute sort order: %w", err)
		}
		if maxOrder.Valid {
			status.SortOrder = int(maxOrder.Int64) + 1
		}
	}

	if err := s.db.WithContext(ctx).Create(status).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("lead status %q: %w", name, ErrConflict)
		}
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to create lead status")
		return nil, fmt.Errorf("failed to create lead status: %w", err)
	}
	return status, nil
}

// Update changes a status. A rename is applied to every conversation of the tenant
// carrying the old name in the same transaction.
func (s *LeadStatusService) Update(ctx context.Context, tenantID, id string, in LeadStatusUpdate) (*models.CustomLeadStatus, error) {
	status, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	oldName := status.Name
	newName := oldName
	if in.Name != nil {
		newName = strings.TrimSpace(*in.Name)
		if newName == "" {
			return nil, validationErr("lead status name is required")
		}
		updates["name"] = newName
	}
	if in.Color != nil {
		updates["color"] = *in.Color
	}
	if in.SortOrder != nil {
		updates["sort_order"] = *in.SortOrder
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return status, nil
	}

	var renamed int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CustomLeadStatus{}).Where("id = ? AND tenant_id = ?", id, tenantID).Updates(updates).Error; err != nil {
			return err
		}
		if newName == oldName {
			return nil
		}
		res := tx.Model(&models.Conversation{}).
			Where("tenant_id = ? AND lead_status = ?", tenantID, oldName).
			UpdateColumn("lead_status", newName)
		renamed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("lead status %q: %w", newName, ErrConflict)
		}
		log.Error().Err(err).Str("leadStatusID", id).Msg("Failed to update lead status")
		return nil, fmt.Errorf("failed to update lead status: %w", err)
	}
	if newName != oldName {
		log.Info().Str("tenantID", tenantID).Str("from", oldName).Str("to", newName).Int64("conversations", renamed).Msg("Lead status renamed")
	}
	return s.get(ctx, tenantID, id)
}

// Delete removes a status nobody uses. A status still set on conversations yields
// *StatusInUseError.
func (s *LeadStatusService) Delete(ctx context.Context, tenantID, id string) error {
	status, err := s.get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	var inUse int64
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("tenant_id = ? AND lead_status = ?", tenantID, status.Name).
		Count(&inUse).Error; err != nil {
		return fmt.Errorf("failed to count conversations using lead status: %w", err)
	}
	if inUse > 0 {
		return &StatusInUseError{Name: status.Name, Count: inUse}
	}
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.CustomLeadStatus{}).Error; err != nil {
		return fmt.Errorf("failed to delete lead status: %w", err)
	}
	return nil
}

func (s *LeadStatusService) get(ctx context.Context, tenantID, id string) (*models.CustomLeadStatus, error) {
	var status models.CustomLeadStatus
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&status).Error; err != nil {
		return nil, loadErr("lead status", id, err)
	}
	return &status, nil
}
