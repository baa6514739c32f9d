package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ConflictKind separates batch-vs-batch from batch-vs-booked collisions.
type ConflictKind string

const (
	ConflictInternal ConflictKind = "internal"
	ConflictExternal ConflictKind = "external"
)

// Severity is the bucketed form of a severity score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForScore buckets a 0–100 score.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 80:
		return SeverityCritical
	case score >= 60:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities from 1 (low) to 4 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

var conflictNamespace = uuid.MustParse("6f1c8a52-4d3e-5b7a-9c0d-2e8f1a3b5c7d")

// Conflict records a collision between a batch item and a counterpart.
// Exactly one of CounterpartItem and CounterpartSchedule is set.
type Conflict struct {
	ID                  uuid.UUID         `json:"id"`
	Kind                ConflictKind      `json:"kind"`
	Subject             AdjustmentItem    `json:"subject"`
	CounterpartItem     *AdjustmentItem   `json:"counterpart_item,omitempty"`
	CounterpartSchedule *ExistingSchedule `json:"counterpart_schedule,omitempty"`
	OverlapMinutes      int               `json:"overlap_minutes"`
	OverlapKind         OverlapKind       `json:"overlap_kind"`
	Severity            Severity          `json:"severity"`
	SeverityScore       float64           `json:"severity_score"`
}

// NewInternalConflict builds a conflict between two batch items. Subject is the item expected to move.
func NewInternalConflict(subject, counterpart AdjustmentItem, overlap Overlap) *Conflict {
	c := counterpart
	return &Conflict{
		ID:              conflictID(ConflictInternal, subject.ID, counterpart.ID),
		Kind:            ConflictInternal,
		Subject:         subject,
		CounterpartItem: &c,
		OverlapMinutes:  overlap.Minutes,
		OverlapKind:     overlap.Kind,
	}
}

// NewExternalConflict builds a conflict between a batch item and an existing booking.
func NewExternalConflict(subject AdjustmentItem, schedule ExistingSchedule, overlap Overlap) *Conflict {
	s := schedule
	return &Conflict{
		ID:                  conflictID(ConflictExternal, subject.ID, schedule.ID),
		Kind:                ConflictExternal,
		Subject:             subject,
		CounterpartSchedule: &s,
		OverlapMinutes:      overlap.Minutes,
		OverlapKind:         overlap.Kind,
	}
}

// conflictID is stable for the same pair so reruns of a batch produce the same IDs.
func conflictID(kind ConflictKind, subjectID, counterpartID string) uuid.UUID {
	return uuid.NewSHA1(conflictNamespace, []byte(strings.Join([]string{string(kind), subjectID, counterpartID}, "\x00")))
}

// CounterpartID returns the ID of the other side.
func (c *Conflict) CounterpartID() string {
	if c.CounterpartItem != nil {
		return c.CounterpartItem.ID
	}
	if c.CounterpartSchedule != nil {
		return c.CounterpartSchedule.ID
	}
	return ""
}

// CounterpartWindow returns the window of the other side.
func (c *Conflict) CounterpartWindow() TimeWindow {
	if c.CounterpartItem != nil {
		return c.CounterpartItem.ProposedWindow
	}
	if c.CounterpartSchedule != nil {
		return c.CounterpartSchedule.Window
	}
	return TimeWindow{}
}

// CounterpartPriority returns the priority of the other side.
func (c *Conflict) CounterpartPriority() Priority {
	if c.CounterpartItem != nil {
		return c.CounterpartItem.Priority
	}
	if c.CounterpartSchedule != nil {
		return c.CounterpartSchedule.Priority
	}
	return PriorityMedium
}

// ApplyScore sets the score and the matching bucket.
func (c *Conflict) ApplyScore(score float64) {
	c.SeverityScore = score
	c.Severity = SeverityForScore(score)
}
