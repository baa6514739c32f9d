package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "AdjustmentBatch"

	RoutingKeyAdjustmentCommitted = "adjustment.item.committed"
	RoutingKeyBatchCompleted      = "adjustment.batch.completed"
)

var batchNamespace = uuid.MustParse("0b7d3f9e-2a41-5c86-8e13-7f4a9d2c6b10")

// BatchAggregateID derives a stable UUID for a batch identifier.
func BatchAggregateID(batchID string) uuid.UUID {
	return uuid.NewSHA1(batchNamespace, []byte(batchID))
}

// AdjustmentCommitted is emitted when an item's new window is materialized.
type AdjustmentCommitted struct {
	sharedDomain.BaseEvent
	BatchID        string     `json:"batch_id"`
	ItemID         string     `json:"item_id"`
	SubjectName    string     `json:"subject_name"`
	OldStart       time.Time  `json:"old_start"`
	NewStart       time.Time  `json:"new_start"`
	NewMinutes     int        `json:"new_minutes"`
	ApprovalCaseID *uuid.UUID `json:"approval_case_id,omitempty"`
}

// NewAdjustmentCommitted creates the event for a commit.
func NewAdjustmentCommitted(c Commit) AdjustmentCommitted {
	return AdjustmentCommitted{
		BaseEvent:      sharedDomain.NewBaseEvent(BatchAggregateID(c.BatchID), AggregateType, RoutingKeyAdjustmentCommitted, c.CommittedAt),
		BatchID:        c.BatchID,
		ItemID:         c.Item.ID,
		SubjectName:    c.Item.SubjectName,
		OldStart:       c.Item.OriginalWindow.Start,
		NewStart:       c.Item.ProposedWindow.Start,
		NewMinutes:     c.Item.ProposedWindow.DurationMinutes,
		ApprovalCaseID: c.ApprovalCaseID,
	}
}

// BatchCompleted is emitted once a batch run has produced its report.
type BatchCompleted struct {
	sharedDomain.BaseEvent
	BatchID  string       `json:"batch_id"`
	Strategy Strategy     `json:"strategy"`
	Summary  BatchSummary `json:"summary"`
}

// NewBatchCompleted creates the event for a finished report.
func NewBatchCompleted(r *BatchReport) BatchCompleted {
	return BatchCompleted{
		BaseEvent: sharedDomain.NewBaseEvent(BatchAggregateID(r.BatchID), AggregateType, RoutingKeyBatchCompleted, r.CompletedAt),
		BatchID:   r.BatchID,
		Strategy:  r.Strategy,
		Summary:   r.Summary,
	}
}
