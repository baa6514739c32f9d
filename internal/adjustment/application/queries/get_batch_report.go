package queries

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

// GetBatchReportQuery contains the parameters for getting a batch report.
type GetBatchReportQuery struct {
	BatchID string
	// WithConflicts also loads the persisted conflict records.
	WithConflicts bool
}

// BatchReportView is a stored report together with its conflict records.
type BatchReportView struct {
	Report  *domain.BatchReport     `json:"report"`
	Records []domain.ConflictRecord `json:"conflict_records,omitempty"`
}

// GetBatchReportHandler handles the GetBatchReportQuery.
type GetBatchReportHandler struct {
	reports   domain.BatchReportRepository
	conflicts domain.ConflictRepository
}

// NewGetBatchReportHandler creates a new GetBatchReportHandler. conflicts may be nil.
func NewGetBatchReportHandler(reports domain.BatchReportRepository, conflicts domain.ConflictRepository) *GetBatchReportHandler {
	return &GetBatchReportHandler{reports: reports, conflicts: conflicts}
}

// Handle executes the GetBatchReportQuery.
func (h *GetBatchReportHandler) Handle(ctx context.Context, query GetBatchReportQuery) (*BatchReportView, error) {
	if query.BatchID == "" {
		return nil, domain.NewValidationError("batch_id", "batch id is required")
	}
	report, err := h.reports.FindByID(ctx, query.BatchID)
	if err != nil {
		return nil, err
	}

	view := &BatchReportView{Report: report}
	if query.WithConflicts && h.conflicts != nil {
		records, err := h.conflicts.FindByBatch(ctx, query.BatchID)
		if err != nil {
			return nil, fmt.Errorf("load conflicts of batch %s: %w", query.BatchID, err)
		}
		view.Records = records
	}
	return view, nil
}
