package domain

import (
	"fmt"
	"strings"
)

// Priority ranks how urgent a visit is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts the four priority names case-insensitively; empty means medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", NewValidationError("priority", fmt.Sprintf("unknown priority %q", s))
	}
}

// Rank orders priorities from 1 (low) to 4 (urgent). Unknown values rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 2
	}
}

// Score maps the priority onto [0,1] for severity weighting.
func (p Priority) Score() float64 {
	return float64(p.Rank()) / 4
}

// AdjustmentItem is one proposed reschedule inside a batch.
type AdjustmentItem struct {
	ID             string     `json:"id" yaml:"id"`
	SubjectName    string     `json:"subject_name" yaml:"subject_name"`
	OriginalWindow TimeWindow `json:"original_window" yaml:"original_window"`
	ProposedWindow TimeWindow `json:"proposed_window" yaml:"proposed_window"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	ServiceType    string     `json:"service_type" yaml:"service_type"`
	PatientType    string     `json:"patient_type" yaml:"patient_type"`
	ResourceID     string     `json:"resource_id,omitempty" yaml:"resource_id"`
	IsEmergency    bool       `json:"is_emergency" yaml:"is_emergency"`
}

// Validate checks the item is well formed. It stops at the first problem.
func (i AdjustmentItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return NewValidationError("id", "item id is required")
	}
	if err := i.OriginalWindow.Validate(); err != nil {
		return fmt.Errorf("item %s original window: %w", i.ID, err)
	}
	if err := i.ProposedWindow.Validate(); err != nil {
		return fmt.Errorf("item %s proposed window: %w", i.ID, err)
	}
	if _, err := ParsePriority(string(i.Priority)); err != nil {
		return fmt.Errorf("item %s: %w", i.ID, err)
	}
	return nil
}

// ExistingSchedule is a read-only snapshot of a booked visit.
type ExistingSchedule struct {
	ID          string     `json:"id"`
	SubjectName string     `json:"subject_name"`
	Window      TimeWindow `json:"window"`
	ServiceType string     `json:"service_type"`
	Priority    Priority   `json:"priority"`
	ResourceID  string     `json:"resource_id,omitempty"`
}
