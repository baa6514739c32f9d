package domain

import (
	"context"

	"github.com/google/uuid"
)

// CaseFilter narrows case listings.
type CaseFilter struct {
	Status  CaseStatus
	BatchID string
	Limit   int
}

// CaseRepository persists approval cases. Writes are last-write-wins; callers serialize mutation per case.
type CaseRepository interface {
	Save(ctx context.Context, c *ApprovalCase) error
	FindByID(ctx context.Context, id uuid.UUID) (*ApprovalCase, error)
	FindActiveByRequestKey(ctx context.Context, key string) (*ApprovalCase, error)
	List(ctx context.Context, filter CaseFilter) ([]*ApprovalCase, error)
}
