package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrAuthorization marks a decision by the wrong role.
	ErrAuthorization = errors.New("approver role does not match the current step")
	// ErrDuplicateDecision marks a decision on an already resolved step.
	ErrDuplicateDecision = errors.New("step already decided")
	// ErrWorkflowIntegrity marks a broken case invariant or a mutation of a terminal case.
	ErrWorkflowIntegrity = errors.New("workflow integrity violated")
	// ErrStepNotActive marks a decision on a step that has not been reached.
	ErrStepNotActive = errors.New("step is not active")
	// ErrCaseNotFound is returned when an approval case does not exist.
	ErrCaseNotFound = errors.New("approval case not found")
	// ErrActiveCaseExists is returned when a request already has an open case.
	ErrActiveCaseExists = errors.New("request already has an active approval case")
	// ErrEmptyTemplate is returned when a case would have no steps.
	ErrEmptyTemplate = errors.New("approval template has no steps")
	// ErrConcurrentModification is returned when a case changed since it was loaded.
	ErrConcurrentModification = errors.New("approval case was modified concurrently")
)

// AuthorizationError names the role the step expected.
type AuthorizationError struct {
	Expected Role
	Got      Role
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("step requires role %s, got %s", e.Expected, e.Got)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}

// DuplicateDecisionError identifies the step that was already decided.
type DuplicateDecisionError struct {
	CaseID    uuid.UUID
	StepIndex int
	Status    StepStatus
}

func (e *DuplicateDecisionError) Error() string {
	return fmt.Sprintf("case %s step %d already %s", e.CaseID, e.StepIndex, e.Status)
}

func (e *DuplicateDecisionError) Is(target error) bool {
	return target == ErrDuplicateDecision
}

// WorkflowIntegrityError describes what is broken.
type WorkflowIntegrityError struct {
	CaseID uuid.UUID
	Reason string
}

func (e *WorkflowIntegrityError) Error() string {
	return fmt.Sprintf("case %s: %s", e.CaseID, e.Reason)
}

func (e *WorkflowIntegrityError) Is(target error) bool {
	return target == ErrWorkflowIntegrity
}
