package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. It is never retried.
	ErrValidation = errors.New("validation error")
	// ErrLookupFailure marks an unavailable schedule store.
	ErrLookupFailure = errors.New("schedule lookup failed")
	// ErrResolutionExhausted marks an auto search that found no valid window.
	ErrResolutionExhausted = errors.New("no valid alternative window found")
	// ErrReportNotFound is returned when a batch report does not exist.
	ErrReportNotFound = errors.New("batch report not found")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LookupError records a failed lookup for one item.
type LookupError struct {
	ItemID string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup for item %s: %v", e.ItemID, e.Err)
}

func (e *LookupError) Unwrap() []error {
	return []error{ErrLookupFailure, e.Err}
}
