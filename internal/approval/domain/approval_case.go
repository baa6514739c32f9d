package domain

import (
	"fmt"
	"time"

	adjustment "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	sharedDomain "github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/google/uuid"
)

// CaseStatus is the status of an approval case.
type CaseStatus string

const (
	CaseStatusPending    CaseStatus = "pending"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusApproved   CaseStatus = "approved"
	CaseStatusRejected   CaseStatus = "rejected"
)

// IsTerminal reports whether no more decisions are accepted.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusApproved || s == CaseStatusRejected
}

// IsValid reports whether s is one of the known statuses.
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusPending, CaseStatusInProgress, CaseStatusApproved, CaseStatusRejected:
		return true
	}
	return false
}

// StepStatus is the status of one approval step.
type StepStatus string

const (
	StepWaiting   StepStatus = "waiting"
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepCancelled StepStatus = "cancelled"
)

// Resolved reports whether the step carries a decision.
func (s StepStatus) Resolved() bool {
	return s == StepApproved || s == StepRejected
}

// Decision is an approver's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ApprovalStep is one role-gated checkpoint. Deadlines are informational.
type ApprovalStep struct {
	Role          Role       `json:"role"`
	AutoApprove   bool       `json:"auto_approve"`
	Urgent        bool       `json:"urgent"`
	DeadlineHours float64    `json:"deadline_hours"`
	Status        StepStatus `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Decision      Decision   `json:"decision,omitempty"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	Comments      string     `json:"comments,omitempty"`
}

// Deadline returns StartedAt + DeadlineHours, if the step has started and has a deadline.
func (s ApprovalStep) Deadline() (time.Time, bool) {
	if s.StartedAt == nil || s.DeadlineHours <= 0 {
		return time.Time{}, false
	}
	return s.StartedAt.Add(time.Duration(s.DeadlineHours * float64(time.Hour))), true
}

// History actions.
const (
	ActionOpened       = "opened"
	ActionApproved     = "approved"
	ActionAutoApproved = "auto_approved"
	ActionRejected     = "rejected"
	ActionCancelled    = "cancelled"
)

// HistoryEntry is one append-only record of what happened to a case.
type HistoryEntry struct {
	At        time.Time `json:"at"`
	StepIndex int       `json:"step_index"`
	Role      Role      `json:"role,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Action    string    `json:"action"`
	Comments  string    `json:"comments,omitempty"`
}

// Submission is a decision for one step. A negative StepIndex targets the current step.
type Submission struct {
	StepIndex int
	Role      Role
	Actor     string
	Approve   bool
	Comments  string
}

// ApprovalCase drives one adjustment request through its approval steps.
//
// While pending or in progress exactly one step is pending, every earlier step is approved and
// every later step is waiting. A rejected case has one rejected step, approved steps before it and
// cancelled steps after it.
type ApprovalCase struct {
	sharedDomain.BaseAggregateRoot
	request     permission.AdjustmentRequest
	tier        permission.Tier
	impactScore float64
	steps       []ApprovalStep
	current     int
	status      CaseStatus
	history     []HistoryEntry
}

// OpenCase creates a case from a template. Leading auto-approve steps resolve immediately.
func OpenCase(request permission.AdjustmentRequest, template Template, now time.Time) (*ApprovalCase, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	if len(template.Steps) == 0 {
		return nil, ErrEmptyTemplate
	}

	now = now.UTC()
	c := &ApprovalCase{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		request:           request,
		tier:              template.Tier,
		impactScore:       template.ImpactScore,
		steps:             make([]ApprovalStep, len(template.Steps)),
		status:            CaseStatusPending,
	}
	for i, st := range template.Steps {
		c.steps[i] = ApprovalStep{
			Role:          st.Role,
			AutoApprove:   st.AutoApprove,
			Urgent:        st.Urgent,
			DeadlineHours: st.DeadlineHours,
			Status:        StepWaiting,
		}
	}
	c.steps[0].Status = StepPending
	c.steps[0].StartedAt = &now
	c.history = append(c.history, HistoryEntry{At: now, StepIndex: 0, Action: ActionOpened})
	c.AddDomainEvent(NewCaseOpened(c, now))

	c.runAutoApprovals(now)
	if err := c.CheckInvariant(); err != nil {
		return nil, err
	}
	return c, nil
}

// Submit applies a decision to the current step.
func (c *ApprovalCase) Submit(sub Submission, now time.Time) error {
	now = now.UTC()
	idx := sub.StepIndex
	if idx < 0 {
		idx = c.current
	}
	if idx >= len(c.steps) {
		return adjustment.NewValidationError("step_index", fmt.Sprintf("case has %d steps, got index %d", len(c.steps), idx))
	}

	step := c.steps[idx]
	if step.Status.Resolved() {
		return &DuplicateDecisionError{CaseID: c.ID(), StepIndex: idx, Status: step.Status}
	}
	if c.status.IsTerminal() {
		return &WorkflowIntegrityError{CaseID: c.ID(), Reason: fmt.Sprintf("case is %s", c.status)}
	}
	if idx != c.current {
		return fmt.Errorf("%w: step %d is %s, current step is %d", ErrStepNotActive, idx, step.Status, c.current)
	}
	if sub.Role != step.Role {
		return &AuthorizationError{Expected: step.Role, Got: sub.Role}
	}
	if err := c.CheckInvariant(); err != nil {
		return err
	}

	if sub.Approve {
		c.approveCurrent(sub.Actor, sub.Comments, ActionApproved, now)
		c.runAutoApprovals(now)
	} else {
		c.rejectCurrent(sub.Actor, sub.Comments, now)
	}
	c.Touch(now)
	return c.CheckInvariant()
}

func (c *ApprovalCase) approveCurrent(actor, comments, action string, now time.Time) {
	step := &c.steps[c.current]
	step.Status = StepApproved
	step.Decision = DecisionApprove
	step.DecidedBy = actor
	step.DecidedAt = &now
	step.Comments = comments
	c.history = append(c.history, HistoryEntry{
		At: now, StepIndex: c.current, Role: step.Role, Actor: actor, Action: action, Comments: comments,
	})
	c.AddDomainEvent(NewStepDecided(c, c.current, *step, now))

	if c.current == len(c.steps)-1 {
		c.status = CaseStatusApproved
		c.AddDomainEvent(NewCaseCompleted(c, now))
		return
	}
	c.current++
	next := &c.steps[c.current]
	next.Status = StepPending
	next.StartedAt = &now
	c.status = CaseStatusInProgress
}

func (c *ApprovalCase) rejectCurrent(actor, comments string, now time.Time) {
	step := &c.steps[c.current]
	step.Status = StepRejected
	step.Decision = DecisionReject
	step.DecidedBy = actor
	step.DecidedAt = &now
	step.Comments = comments
	c.history = append(c.history, HistoryEntry{
		At: now, StepIndex: c.current, Role: step.Role, Actor: actor, Action: ActionRejected, Comments: comments,
	})
	c.AddDomainEvent(NewStepDecided(c, c.current, *step, now))

	for i := c.current + 1; i < len(c.steps); i++ {
		c.steps[i].Status = StepCancelled
		c.history = append(c.history, HistoryEntry{At: now, StepIndex: i, Role: c.steps[i].Role, Action: ActionCancelled})
	}
	c.status = CaseStatusRejected
	c.AddDomainEvent(NewCaseCompleted(c, now))
}

func (c *ApprovalCase) runAutoApprovals(now time.Time) {
	for !c.status.IsTerminal() && c.steps[c.current].AutoApprove && c.steps[c.current].Status == StepPending {
		c.approveCurrent(SystemActor, "approved by policy", ActionAutoApproved, now)
	}
}

// CheckInvariant verifies the step layout matches the case status.
func (c *ApprovalCase) CheckInvariant() error {
	broken := func(format string, args ...any) error {
		return &WorkflowIntegrityError{CaseID: c.ID(), Reason: fmt.Sprintf(format, args...)}
	}
	if c.current < 0 || c.current >= len(c.steps) {
		return broken("current step %d out of range", c.current)
	}

	for i, s := range c.steps {
		var want StepStatus
		switch {
		case c.status == CaseStatusApproved:
			want = StepApproved
		case i < c.current:
			want = StepApproved
		case i == c.current && c.status == CaseStatusRejected:
			want = StepRejected
		case i == c.current:
			want = StepPending
		case c.status == CaseStatusRejected:
			want = StepCancelled
		default:
			want = StepWaiting
		}
		if s.Status != want {
			return broken("step %d is %s while case is %s, want %s", i, s.Status, c.status, want)
		}
	}
	if c.status == CaseStatusPending && c.current != 0 {
		return broken("pending case at step %d", c.current)
	}
	return nil
}

func (c *ApprovalCase) Request() permission.AdjustmentRequest { return c.request }
func (c *ApprovalCase) RequestKey() string                    { return c.request.Key() }
func (c *ApprovalCase) Tier() permission.Tier                 { return c.tier }
func (c *ApprovalCase) ImpactScore() float64                  { return c.impactScore }
func (c *ApprovalCase) Status() CaseStatus                    { return c.status }
func (c *ApprovalCase) CurrentStepIndex() int                 { return c.current }

// Steps returns a copy of the steps.
func (c *ApprovalCase) Steps() []ApprovalStep {
	out := make([]ApprovalStep, len(c.steps))
	copy(out, c.steps)
	return out
}

// CurrentStep returns the step decisions are expected for.
func (c *ApprovalCase) CurrentStep() ApprovalStep {
	return c.steps[c.current]
}

// History returns a copy of the history.
func (c *ApprovalCase) History() []HistoryEntry {
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// CaseSnapshot is the persisted form of a case.
type CaseSnapshot struct {
	ID          uuid.UUID                    `json:"id"`
	Request     permission.AdjustmentRequest `json:"request"`
	Tier        permission.Tier              `json:"tier"`
	ImpactScore float64                      `json:"impact_score"`
	Status      CaseStatus                   `json:"status"`
	CurrentStep int                          `json:"current_step"`
	Steps       []ApprovalStep               `json:"steps"`
	History     []HistoryEntry               `json:"history"`
	Version     int                          `json:"version"`
	CreatedAt   time.Time                    `json:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at"`
}

// Snapshot captures the case state.
func (c *ApprovalCase) Snapshot() CaseSnapshot {
	return CaseSnapshot{
		ID:          c.ID(),
		Request:     c.request,
		Tier:        c.tier,
		ImpactScore: c.impactScore,
		Status:      c.status,
		CurrentStep: c.current,
		Steps:       c.Steps(),
		History:     c.History(),
		Version:     c.Version(),
		CreatedAt:   c.CreatedAt(),
		UpdatedAt:   c.UpdatedAt(),
	}
}

// RehydrateCase rebuilds a case from a snapshot and verifies its invariant.
func RehydrateCase(s CaseSnapshot) (*ApprovalCase, error) {
	c := &ApprovalCase{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt),
			s.Version,
		),
		request:     s.Request,
		tier:        s.Tier,
		impactScore: s.ImpactScore,
		steps:       s.Steps,
		current:     s.CurrentStep,
		status:      s.Status,
		history:     s.History,
	}
	if err := c.CheckInvariant(); err != nil {
		return nil, err
	}
	return c, nil
}
