package domain

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the final state of an item after a batch run.
type ItemStatus string

const (
	ItemCommitted        ItemStatus = "committed"
	ItemAwaitingApproval ItemStatus = "awaiting_approval"
	ItemDenied           ItemStatus = "denied"
	ItemSkipped          ItemStatus = "skipped"
	ItemCancelled        ItemStatus = "cancelled"
	ItemNegotiating      ItemStatus = "negotiating"
	ItemNeedsReview      ItemStatus = "needs_review"
	ItemUnresolved       ItemStatus = "unresolved"
	ItemFailed           ItemStatus = "failed"
)

// ItemReport describes what happened to one item.
type ItemReport struct {
	ItemID         string     `json:"item_id"`
	SubjectName    string     `json:"subject_name"`
	Status         ItemStatus `json:"status"`
	OriginalWindow TimeWindow `json:"original_window"`
	FinalWindow    TimeWindow `json:"final_window"`
	Tier           string     `json:"tier,omitempty"`
	ImpactScore    float64    `json:"impact_score,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
	Errors         []string   `json:"errors,omitempty"`
	ApprovalCaseID *uuid.UUID `json:"approval_case_id,omitempty"`
}

// BatchSummary counts items per outcome.
type BatchSummary struct {
	Items            int `json:"items"`
	Conflicts        int `json:"conflicts"`
	Committed        int `json:"committed"`
	AwaitingApproval int `json:"awaiting_approval"`
	Denied           int `json:"denied"`
	Failed           int `json:"failed"`
	Other            int `json:"other"`
}

// BatchReport covers every item and every conflict of a run.
type BatchReport struct {
	BatchID        string               `json:"batch_id"`
	Strategy       Strategy             `json:"strategy"`
	RequesterID    string               `json:"requester_id"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    time.Time            `json:"completed_at"`
	Conflicts      []*Conflict          `json:"conflicts"`
	Decisions      []ResolutionDecision `json:"decisions"`
	Items          []ItemReport         `json:"items"`
	LookupFailures []string             `json:"lookup_failures,omitempty"`
	Summary        BatchSummary         `json:"summary"`
}

// Summarize recomputes Summary from Items and Conflicts.
func (r *BatchReport) Summarize() {
	s := BatchSummary{Items: len(r.Items), Conflicts: len(r.Conflicts)}
	for _, item := range r.Items {
		switch item.Status {
		case ItemCommitted:
			s.Committed++
		case ItemAwaitingApproval:
			s.AwaitingApproval++
		case ItemDenied:
			s.Denied++
		case ItemFailed:
			s.Failed++
		default:
			s.Other++
		}
	}
	r.Summary = s
}

// ConflictRecord is the persisted pairing of a conflict and its decision.
type ConflictRecord struct {
	Conflict   Conflict           `json:"conflict"`
	Decision   ResolutionDecision `json:"decision"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// Commit is one adjustment ready to be materialized.
type Commit struct {
	BatchID        string
	Item           AdjustmentItem
	ApprovalCaseID *uuid.UUID
	CommittedAt    time.Time
}
