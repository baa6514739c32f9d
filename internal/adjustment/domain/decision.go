package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Strategy selects how a batch run resolves conflicts.
type Strategy string

const (
	StrategyAuto   Strategy = "auto"
	StrategyManual Strategy = "manual"
	StrategySkip   Strategy = "skip"
	StrategySmart  Strategy = "smart"
)

// ParseStrategy accepts the four strategy names; empty means smart.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategySmart, nil
	case StrategyAuto, StrategyManual, StrategySkip, StrategySmart:
		return st, nil
	default:
		return "", NewValidationError("strategy", fmt.Sprintf("unknown strategy %q", s))
	}
}

// Action is what a decision does to the subject item.
type Action string

const (
	ActionReschedule       Action = "reschedule"
	ActionRescheduleManual Action = "reschedule_manual"
	ActionSkip             Action = "skip"
	ActionForce            Action = "force"
	ActionCancel           Action = "cancel"
	ActionNegotiate        Action = "negotiate"
)

// ParseAction accepts the six action names.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionReschedule, ActionRescheduleManual, ActionSkip, ActionForce, ActionCancel, ActionNegotiate:
		return a, nil
	default:
		return "", NewValidationError("action", fmt.Sprintf("unknown action %q", s))
	}
}

// SmartAction is the outcome picked by the smart decision table.
type SmartAction string

const (
	SmartAutoReschedule SmartAction = "auto_reschedule"
	SmartSkip           SmartAction = "skip"
	SmartManualReview   SmartAction = "manual_review"
	SmartNegotiate      SmartAction = "negotiate"
)

// ResolutionDecision closes one conflict.
type ResolutionDecision struct {
	ConflictID   uuid.UUID   `json:"conflict_id"`
	ItemID       string      `json:"item_id"`
	Action       Action      `json:"action"`
	TargetWindow *TimeWindow `json:"target_window,omitempty"`
	Confidence   float64     `json:"confidence"`
	Rationale    string      `json:"rationale"`
	Attempts     int         `json:"attempts,omitempty"`
	// Failed marks a decision that could not be carried out, such as an exhausted auto search.
	Failed bool `json:"failed,omitempty"`
	// Escalated marks a decision that needs a coordinator.
	Escalated bool `json:"escalated,omitempty"`
	// Risk marks a forced decision that bypassed overlap validation.
	Risk        bool        `json:"risk,omitempty"`
	SmartAction SmartAction `json:"smart_action,omitempty"`
}

// Applied reports whether the decision leaves the item at a new, committed-ready window.
func (d ResolutionDecision) Applied() bool {
	if d.Failed || d.Escalated {
		return false
	}
	switch d.Action {
	case ActionReschedule, ActionRescheduleManual, ActionForce:
		return true
	default:
		return false
	}
}

// ManualChoice is a coordinator's explicit action for one conflict.
type ManualChoice struct {
	Action Action      `json:"action" yaml:"action"`
	Target *TimeWindow `json:"target,omitempty" yaml:"target"`
}
