package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
)

// ListCasesQuery contains the parameters for listing cases.
type ListCasesQuery struct {
	Status  string
	BatchID string
	Limit   int
}

// ListCasesHandler handles the ListCasesQuery.
type ListCasesHandler struct {
	repo domain.CaseRepository
	now  func() time.Time
}

// NewListCasesHandler creates a new ListCasesHandler.
func NewListCasesHandler(repo domain.CaseRepository) *ListCasesHandler {
	return &ListCasesHandler{repo: repo, now: time.Now}
}

// Handle executes the ListCasesQuery.
func (h *ListCasesHandler) Handle(ctx context.Context, query ListCasesQuery) ([]CaseDTO, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	cases, err := h.repo.List(ctx, domain.CaseFilter{
		Status:  domain.CaseStatus(query.Status),
		BatchID: query.BatchID,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	now := h.now()
	dtos := make([]CaseDTO, 0, len(cases))
	for _, c := range cases {
		dtos = append(dtos, ToCaseDTO(c, now, false))
	}
	return dtos, nil
}
