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

// ContactService resolves phone numbers to tenant contacts.
type ContactService struct {
	db *gorm.DB
}

// NewContactService creates a new ContactService.
func NewContactService(db *gorm.DB) (*ContactService, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &ContactService{db: db}, nil
}

type ContactInput struct {
	Phone string   `json:"phone"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Tags  []string `json:"tags"`
}

type ContactUpdate struct {
	Name  *string   `json:"name"`
	Email *string   `json:"email"`
	Tags  *[]string `json:"tags"`
}

// FindOrCreate returns the tenant's contact for phone, creating it when absent.
// Concurrent callers converge on one row through the (tenant_id, phone) unique index.
func (s *ContactService) FindOrCreate(ctx context.Context, tenantID, phone, name string) (*models.Contact, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, validationErr("contact phone is required")
	}

	contact, err := s.findByPhone(ctx, tenantID, phone)
	if err == nil {
		if contact.Name == nil && name != "" {
			s.fillName(ctx, contact, name)
		}
		return contact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Str("tenantID", tenantID).Str("phone", phone).Msg("Error querying contact by phone")
		return nil, fmt.Errorf("error querying contact: %w", err)
	}

	contact = &models.Contact{
		TenantID: tenantID,
		Phone:    phone,
		Name:     models.StringPtr(name),
		Tags:     datatypes.JSONSlice[string]{},
	}
	if err := s.db.WithContext(ctx).Create(contact).Error; err != nil {
		if !isUniqueViolation(err) {
			log.Error().Err(err).Str("tenantID", tenantID).Str("phone", phone).Msg("Failed to create contact")
			return nil, fmt.Errorf("failed to create contact: %w", err)
		}
		// lost the race to a concurrent creator
		log.Debug().Str("tenantID", tenantID).Str("phone", phone).Msg("Contact created concurrently, re-fetching")
		existing, err := s.findByPhone(ctx, tenantID, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to re-fetch contact after duplicate insert: %w", err)
		}
		return existing, nil
	}

	log.Info().Str("tenantID", tenantID).Str("contactID", contact.ID).Str("phone", phone).Msg("Created contact")
	return contact, nil
}

func (s *ContactService) findByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND phone = ?", tenantID, phone).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *ContactService) fillName(ctx context.Context, contact *models.Contact, name string) {
	err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("id = ? AND name IS NULL", contact.ID).
		Update("name", name).Error
	if err != nil {
		log.Warn().Err(err).Str("contactID", contact.ID).Msg("Failed to backfill contact name")
		return
	}
	contact.Name = &name
}

// Create registers a contact explicitly; an existing phone is a conflict.
func (s *ContactService) Create(ctx context.Context, tenantID string, in ContactInput) (*models.Contact, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Phone == "" {
		return nil, validationErr("contact phone is required")
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	contact := &models.Contact{
		TenantID: tenantID,
		Phone:    in.Phone,
		Name:     models.StringPtr(in.Name),
		Email:    models.StringPtr(in.Email),
		Tags:     datatypes.JSONSlice[string](tags),
	}
	if err := s.db.WithContext(ctx).Create(contact).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("contact with phone %s: %w", in.Phone, ErrConflict)
		}
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Failed to create contact")
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

func (s *ContactService) Get(ctx context.Context, tenantID, id string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&contact).Error; err != nil {
		return nil, loadErr("contact", id, err)
	}
	return &contact, nil
}

func (s *ContactService) Update(ctx context.Context, tenantID, id string, in ContactUpdate) (*models.Contact, error) {
	contact, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = models.StringPtr(*in.Name)
	}
	if in.Email != nil {
		updates["email"] = models.StringPtr(*in.Email)
	}
	if in.Tags != nil {
		tags := *in.Tags
		if tags == nil {
			tags = []string{}
		}
		updates["tags"] = datatypes.JSONSlice[string](tags)
	}
	if len(updates) == 0 {
		return contact, nil
	}
	if err := s.db.WithContext(ctx).Model(contact).Updates(updates).Error; err != nil {
		log.Error().Err(err).Str("contactID", id).Msg("Failed to update contact")
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	return s.Get(ctx, tenantID, id)
}

// List pages through contacts, newest first, optionally filtered by name or phone.
func (s *ContactService) List(ctx context.Context, tenantID, search string, page, limit int) (*Page[models.Contact], error) {
	page, limit, offset := normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.Contact{}).Where("tenant_id = ?", tenantID)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		q = q.Where("(name LIKE ? OR phone LIKE ?)", like, like)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	var contacts []models.Contact
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return &Page[models.Contact]{Data: contacts, Total: total, Page: page, Limit: limit}, nil
}
