package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	sharedApplication "github.com/felixgeelhaar/carevisit/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/google/uuid"
)

// ApprovalListener is told when a case reaches approved.
type ApprovalListener interface {
	OnCaseApproved(ctx context.Context, c *domain.ApprovalCase) error
}

// WorkflowEngine runs approval cases. Mutations of one case are serialized.
type WorkflowEngine struct {
	repo     domain.CaseRepository
	uow      sharedApplication.UnitOfWork
	gateway  sharedApplication.NotificationGateway
	listener ApprovalListener
	metrics  observability.Metrics
	now      func() time.Time
	locks    *keyedMutex
	logger   *slog.Logger
}

// NewWorkflowEngine creates a workflow engine.
func NewWorkflowEngine(
	repo domain.CaseRepository,
	uow sharedApplication.UnitOfWork,
	gateway sharedApplication.NotificationGateway,
	logger *slog.Logger,
) *WorkflowEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowEngine{
		repo:    repo,
		uow:     uow,
		gateway: gateway,
		metrics: observability.NoopMetrics{},
		now:     time.Now,
		locks:   newKeyedMutex(),
		logger:  logger,
	}
}

// SetListener registers the component that commits approved adjustments.
func (e *WorkflowEngine) SetListener(l ApprovalListener) {
	e.listener = l
}

// SetMetrics records decision counts on m.
func (e *WorkflowEngine) SetMetrics(m observability.Metrics) {
	if m != nil {
		e.metrics = m
	}
}

// SetClock replaces the clock.
func (e *WorkflowEngine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// CreateCase opens a case for the request. A request may only have one active case.
// A case whose steps are all auto-approved is approved, and handed to the listener, before returning.
func (e *WorkflowEngine) CreateCase(
	ctx context.Context,
	request permission.AdjustmentRequest,
	template domain.Template,
) (*domain.ApprovalCase, error) {
	unlock := e.locks.Lock("request:" + request.Key())
	defer unlock()

	var c *domain.ApprovalCase
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		active, err := e.repo.FindActiveByRequestKey(txCtx, request.Key())
		if err != nil && !errors.Is(err, domain.ErrCaseNotFound) {
			return fmt.Errorf("find active case: %w", err)
		}
		if active != nil {
			return fmt.Errorf("%w: %s", domain.ErrActiveCaseExists, active.ID())
		}

		c, err = domain.OpenCase(request, template, e.now())
		if err != nil {
			return err
		}
		return e.repo.Save(txCtx, c)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("approval case opened",
		"case_id", c.ID(),
		"request_key", c.RequestKey(),
		"tier", c.Tier(),
		"steps", len(c.Steps()),
		"status", c.Status(),
	)
	e.publish(ctx, c, request.Requester.ID)

	if err := e.afterDecision(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// SubmitDecision records a decision on a case.
func (e *WorkflowEngine) SubmitDecision(
	ctx context.Context,
	caseID uuid.UUID,
	sub domain.Submission,
) (*domain.ApprovalCase, error) {
	unlock := e.locks.Lock("case:" + caseID.String())
	defer unlock()

	var c *domain.ApprovalCase
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		var err error
		c, err = e.repo.FindByID(txCtx, caseID)
		if err != nil {
			return err
		}
		if err := c.Submit(sub, e.now()); err != nil {
			return err
		}
		return e.repo.Save(txCtx, c)
	})
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowIntegrity) {
			e.logger.Error("approval case integrity violated", "case_id", caseID, "error", err)
		}
		e.metrics.Counter(observability.MetricApprovalDecision, 1, observability.T("outcome", "rejected_submission"))
		return nil, err
	}

	outcome := "reject"
	if sub.Approve {
		outcome = "approve"
	}
	e.metrics.Counter(observability.MetricApprovalDecision, 1,
		observability.T("outcome", outcome),
		observability.T("status", string(c.Status())),
	)

	e.logger.Info("approval decision recorded",
		"case_id", caseID,
		"role", sub.Role,
		"actor", sub.Actor,
		"approve", sub.Approve,
		"status", c.Status(),
		"current_step", c.CurrentStepIndex(),
	)
	e.publish(ctx, c, sub.Actor)

	if err := e.afterDecision(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// GetCase loads a case.
func (e *WorkflowEngine) GetCase(ctx context.Context, caseID uuid.UUID) (*domain.ApprovalCase, error) {
	return e.repo.FindByID(ctx, caseID)
}

func (e *WorkflowEngine) afterDecision(ctx context.Context, c *domain.ApprovalCase) error {
	if c.Status() != domain.CaseStatusApproved || e.listener == nil {
		return nil
	}
	if err := e.listener.OnCaseApproved(ctx, c); err != nil {
		e.logger.Error("commit of approved adjustment failed", "case_id", c.ID(), "error", err)
		return fmt.Errorf("commit approved case %s: %w", c.ID(), err)
	}
	return nil
}

func (e *WorkflowEngine) publish(ctx context.Context, c *domain.ApprovalCase, actorID string) {
	events := c.DomainEvents()
	sharedApplication.ApplyEventMetadata(events, sharedDomain.EventMetadata{
		CorrelationID: observability.CorrelationIDFromContext(ctx),
		ActorID:       actorID,
	})
	sharedApplication.NotifyAll(ctx, e.gateway, events)
	c.ClearDomainEvents()
}
