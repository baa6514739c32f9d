package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermissionDenied marks a request that breaks hard limits of its tier.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProfileNotFound is returned when no profile exists for a tier.
	ErrProfileNotFound = errors.New("permission profile not found")
)

// PermissionDeniedError lists every violated rule.
type PermissionDeniedError struct {
	Tier       Tier
	Violations []Violation
}

func (e *PermissionDeniedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("permission denied for %s tier: %s", e.Tier, strings.Join(msgs, "; "))
}

func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}
