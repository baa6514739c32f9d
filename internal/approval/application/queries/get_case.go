package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	"github.com/google/uuid"
)

// GetCaseQuery contains the parameters for getting a case.
type GetCaseQuery struct {
	CaseID uuid.UUID
}

// GetCaseHandler handles the GetCaseQuery.
type GetCaseHandler struct {
	repo domain.CaseRepository
	now  func() time.Time
}

// NewGetCaseHandler creates a new GetCaseHandler.
func NewGetCaseHandler(repo domain.CaseRepository) *GetCaseHandler {
	return &GetCaseHandler{repo: repo, now: time.Now}
}

// Handle executes the GetCaseQuery.
func (h *GetCaseHandler) Handle(ctx context.Context, query GetCaseQuery) (*CaseDTO, error) {
	c, err := h.repo.FindByID(ctx, query.CaseID)
	if err != nil {
		return nil, err
	}
	dto := ToCaseDTO(c, h.now(), true)
	return &dto, nil
}
