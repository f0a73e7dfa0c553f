package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"whatsapp-helpdesk/internal/models"
)

const (
	workflowDetailLogLimit = 20
	workflowLogsLimit      = 50
)

// WorkflowService manages chatbot workflow definitions and exposes their execution logs.
type WorkflowService struct {
	db    *gorm.DB
	cache *TenantCache
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(db *gorm.DB, cache *TenantCache) (*WorkflowService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &WorkflowService{db: db, cache: cache}, nil
}

type WorkflowInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IsActive    *bool           `json:"isActive"`
	Trigger     models.Trigger  `json:"trigger"`
	Actions     []models.Action `json:"actions"`
}

type WorkflowUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	IsActive    *bool            `json:"isActive"`
	Trigger     *models.Trigger  `json:"trigger"`
	Actions     *[]models.Action `json:"actions"`
}

// WorkflowDetail is a workflow with its most recent execution logs.
type WorkflowDetail struct {
	models.ChatbotWorkflow
	Logs []models.WorkflowLog `json:"logs"`
}

func (s *WorkflowService) List(ctx context.Context, tenantID string) ([]models.ChatbotWorkflow, error) {
	var workflows []models.ChatbotWorkflow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return workflows, nil
}

func (s *WorkflowService) Get(ctx context.Context, tenantID, id string) (*WorkflowDetail, error) {
	wf, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.recentLogs(ctx, id, workflowDetailLogLimit)
	if err != nil {
		return nil, err
	}
	return &WorkflowDetail{ChatbotWorkflow: *wf, Logs: logs}, nil
}

func (s *WorkflowService) get(ctx context.Context, tenantID, id string) (*models.ChatbotWorkflow, error) {
	var wf models.ChatbotWorkflow
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&wf).Error; err != nil {
		return nil, loadErr("workflow", id, err)
	}
	return &wf, nil
}

func (s *WorkflowService) Create(ctx context.Context, tenantID string, in WorkflowInput) (*models.ChatbotWorkflow, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationErr("workflow name is required")
	}
	if err := validateDefinition(in.Trigger, in.Actions); err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	actions := in.Actions
	if actions == nil {
		actions = []models.Action{}
	}
	wf := &models.ChatbotWorkflow{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(in.Name),
		Description: models.StringPtr(in.Description),
		IsActive:    active,
		Trigger:     datatypes.NewJSONType(in.Trigger),
		Actions:     datatypes.NewJSONSlice(actions),
	}
	if err := s.db.WithContext(ctx).Create(wf).Error; err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to create workflow")
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	s.cache.InvalidateWorkflows(tenantID)
	log.Info().Str("tenantID", tenantID).Str("workflowID", wf.ID).Str("trigger", string(in.Trigger.Type)).Msg("Workflow created")
	return wf, nil
}

func (s *WorkflowService) Update(ctx context.Context, tenantID, id string, in WorkflowUpdate) (*models.ChatbotWorkflow, error) {
	wf, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	trigger := wf.Trigger.Data()
	if in.Trigger != nil {
		trigger = *in.Trigger
	}
	actions := []models.Action(wf.Actions)
	if in.Actions != nil {
		actions = *in.Actions
		if actions == nil {
			actions = []models.Action{}
		}
	}
	if err := validateDefinition(trigger, actions); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationErr("workflow name is required")
		}
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		updates["description"] = models.StringPtr(*in.Description)
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.Trigger != nil {
		updates["trigger_def"] = datatypes.NewJSONType(trigger)
	}
	if in.Actions != nil {
		updates["actions"] = datatypes.NewJSONSlice(actions)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(wf).Updates(updates).Error; err != nil {
			log.Error().Err(err).Str("workflowID", id).Msg("Failed to update workflow")
			return nil, fmt.Errorf("failed to update workflow: %w", err)
		}
		s.cache.InvalidateWorkflows(tenantID)
	}
	return s.get(ctx, tenantID, id)
}

// Delete removes the workflow together with its logs.
func (s *WorkflowService) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := s.get(ctx, tenantID, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", id).Delete(&models.WorkflowLog{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.ChatbotWorkflow{}).Error
	})
	if err != nil {
		log.Error().Err(err).Str("workflowID", id).Msg("Failed to delete workflow")
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	s.cache.InvalidateWorkflows(tenantID)
	return nil
}

// Logs returns the workflow's latest execution logs, newest first.
func (s *WorkflowService) Logs(ctx context.Context, tenantID, id string) ([]models.WorkflowLog, error) {
	if _, err := s.get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.recentLogs(ctx, id, workflowLogsLimit)
}

func (s *WorkflowService) recentLogs(ctx context.Context, workflowID string, limit int) ([]models.WorkflowLog, error) {
	var logs []models.WorkflowLog
	if err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("executed_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load workflow logs: %w", err)
	}
	return logs, nil
}

func validateDefinition(trigger models.Trigger, actions []models.Action) error {
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := models.ValidateActions(actions); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// IsValidationError reports whether err came from rejecting caller input,
// including malformed workflow JSON.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, models.ErrInvalidWorkflow)
}
