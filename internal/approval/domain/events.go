package domain

import (
	"time"

	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	sharedDomain "github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "ApprovalCase"

	RoutingKeyCaseOpened    = "approval.case.opened"
	RoutingKeyStepDecided   = "approval.step.decided"
	RoutingKeyCaseCompleted = "approval.case.completed"
)

// CaseOpened is emitted when a case is created.
type CaseOpened struct {
	sharedDomain.BaseEvent
	CaseID      uuid.UUID       `json:"case_id"`
	RequestKey  string          `json:"request_key"`
	ItemID      string          `json:"item_id"`
	Tier        permission.Tier `json:"tier"`
	ImpactScore float64         `json:"impact_score"`
	Roles       []Role          `json:"roles"`
}

// NewCaseOpened creates a CaseOpened event.
func NewCaseOpened(c *ApprovalCase, at time.Time) CaseOpened {
	roles := make([]Role, len(c.steps))
	for i, s := range c.steps {
		roles[i] = s.Role
	}
	return CaseOpened{
		BaseEvent:   sharedDomain.NewBaseEvent(c.ID(), AggregateType, RoutingKeyCaseOpened, at),
		CaseID:      c.ID(),
		RequestKey:  c.request.Key(),
		ItemID:      c.request.ItemID,
		Tier:        c.tier,
		ImpactScore: c.impactScore,
		Roles:       roles,
	}
}

// StepDecided is emitted for every human or automatic decision.
type StepDecided struct {
	sharedDomain.BaseEvent
	CaseID    uuid.UUID `json:"case_id"`
	StepIndex int       `json:"step_index"`
	Role      Role      `json:"role"`
	Decision  Decision  `json:"decision"`
	DecidedBy string    `json:"decided_by"`
	Urgent    bool      `json:"urgent"`
}

// NewStepDecided creates a StepDecided event.
func NewStepDecided(c *ApprovalCase, index int, step ApprovalStep, at time.Time) StepDecided {
	return StepDecided{
		BaseEvent: sharedDomain.NewBaseEvent(c.ID(), AggregateType, RoutingKeyStepDecided, at),
		CaseID:    c.ID(),
		StepIndex: index,
		Role:      step.Role,
		Decision:  step.Decision,
		DecidedBy: step.DecidedBy,
		Urgent:    step.Urgent,
	}
}

// CaseCompleted is emitted when a case is approved or rejected.
type CaseCompleted struct {
	sharedDomain.BaseEvent
	CaseID     uuid.UUID  `json:"case_id"`
	RequestKey string     `json:"request_key"`
	ItemID     string     `json:"item_id"`
	Status     CaseStatus `json:"status"`
}

// NewCaseCompleted creates a CaseCompleted event.
func NewCaseCompleted(c *ApprovalCase, at time.Time) CaseCompleted {
	return CaseCompleted{
		BaseEvent:  sharedDomain.NewBaseEvent(c.ID(), AggregateType, RoutingKeyCaseCompleted, at),
		CaseID:     c.ID(),
		RequestKey: c.request.Key(),
		ItemID:     c.request.ItemID,
		Status:     c.status,
	}
}
