package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrStatusInUse       = errors.New("lead status in use")
	ErrProvider          = errors.New("channel provider failed")
)

// StatusInUseError reports how many conversations still reference a lead status.
type StatusInUseError struct {
	Name  string
	Count int64
}

func (e *StatusInUseError) Error() string {
	return fmt.Sprintf("lead status %q is used by %d conversation(s)", e.Name, e.Count)
}

func (e *StatusInUseError) Unwrap() error { return ErrStatusInUse }

// loadErr turns gorm.ErrRecordNotFound into ErrNotFound and wraps anything else.
func loadErr(entity, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", entity, id, err)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// isUniqueViolation detects duplicate-key errors from either supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate entry")
}
