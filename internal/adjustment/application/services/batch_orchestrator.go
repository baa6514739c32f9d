package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	approval "github.com/felixgeelhaar/carevisit/internal/approval/domain"
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	sharedApplication "github.com/felixgeelhaar/carevisit/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/google/uuid"
)

// PermissionChecker validates a request and counts committed adjustments.
type PermissionChecker interface {
	Evaluate(ctx context.Context, req permission.AdjustmentRequest, now time.Time) (permission.ValidationResult, error)
	RecordUsage(ctx context.Context, req permission.AdjustmentRequest, now time.Time) error
}

// CaseOpener opens approval cases.
type CaseOpener interface {
	CreateCase(ctx context.Context, request permission.AdjustmentRequest, template approval.Template) (*approval.ApprovalCase, error)
}

// RunBatchCommand is one batch submitted for processing.
type RunBatchCommand struct {
	// BatchID defaults to a random UUID.
	BatchID    string
	Items      []domain.AdjustmentItem
	Strategy   domain.Strategy
	Requester  permission.Requester
	ReasonCode string
	Weather    string
	// Choices are the coordinator's actions per conflict, used by the manual strategy.
	Choices  map[uuid.UUID]domain.ManualChoice
	Progress ProgressFunc
}

// BatchOrchestrator runs a batch end to end: classify, resolve, check permissions, then commit or
// route each item to approval.
type BatchOrchestrator struct {
	classifier *ConflictClassifier
	resolver   *ResolutionEngine
	checker    PermissionChecker
	approvals  CaseOpener
	committer  domain.AdjustmentCommitter
	conflicts  domain.ConflictRepository
	reports    domain.BatchReportRepository
	uow        sharedApplication.UnitOfWork
	gateway    sharedApplication.NotificationGateway
	metrics    observability.Metrics
	now        func() time.Time
	logger     *slog.Logger
}

// OrchestratorDeps groups the collaborators of a BatchOrchestrator. Repositories, the unit of work
// and the gateway are optional.
type OrchestratorDeps struct {
	Classifier *ConflictClassifier
	Resolver   *ResolutionEngine
	Checker    PermissionChecker
	Approvals  CaseOpener
	Committer  domain.AdjustmentCommitter
	Conflicts  domain.ConflictRepository
	Reports    domain.BatchReportRepository
	UnitOfWork sharedApplication.UnitOfWork
	Gateway    sharedApplication.NotificationGateway
	Metrics    observability.Metrics
}

// NewBatchOrchestrator creates an orchestrator.
func NewBatchOrchestrator(deps OrchestratorDeps, logger *slog.Logger) *BatchOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = NewConflictClassifier(nil, nil, DefaultClassifierConfig(), logger)
	}
	if deps.Resolver == nil {
		deps.Resolver = NewResolutionEngine(DefaultResolverConfig(), logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	return &BatchOrchestrator{
		classifier: deps.Classifier,
		resolver:   deps.Resolver,
		checker:    deps.Checker,
		approvals:  deps.Approvals,
		committer:  deps.Committer,
		conflicts:  deps.Conflicts,
		reports:    deps.Reports,
		uow:        deps.UnitOfWork,
		gateway:    deps.Gateway,
		metrics:    deps.Metrics,
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock replaces the clock.
func (o *BatchOrchestrator) SetClock(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

// SetApprovals sets the case opener. The workflow engine and the orchestrator refer to each other,
// so one side is wired after construction.
func (o *BatchOrchestrator) SetApprovals(approvals CaseOpener) {
	o.approvals = approvals
}

// Run processes a batch. The report covers every item and every conflict. The returned error is
// non-nil when the context is cancelled, when a workflow integrity violation aborts the run, or when
// the report could not be persisted; in the last two cases the report is returned as well.
func (o *BatchOrchestrator) Run(ctx context.Context, cmd RunBatchCommand) (*domain.BatchReport, error) {
	strategy, err := domain.ParseStrategy(string(cmd.Strategy))
	if err != nil {
		return nil, err
	}
	if cmd.BatchID == "" {
		cmd.BatchID = uuid.NewString()
	}
	cmd.Strategy = strategy
	ctx = observability.WithRequesterID(observability.WithBatchID(ctx, cmd.BatchID), cmd.Requester.ID)

	timer := observability.StartTimer("batch.run").
		WithLogger(o.logger).
		WithMetrics(o.metrics).
		WithTags(observability.T("strategy", string(strategy)))

	report, err := o.run(ctx, cmd)
	timer.StopWithError(err)
	return report, err
}

func (o *BatchOrchestrator) run(ctx context.Context, cmd RunBatchCommand) (*domain.BatchReport, error) {
	report := &domain.BatchReport{
		BatchID:     cmd.BatchID,
		Strategy:    cmd.Strategy,
		RequesterID: cmd.Requester.ID,
		StartedAt:   o.now(),
		Conflicts:   []*domain.Conflict{},
		Decisions:   []domain.ResolutionDecision{},
		Items:       make([]domain.ItemReport, 0, len(cmd.Items)),
	}
	o.logger.Info("batch run started",
		"batch_id", cmd.BatchID,
		"strategy", cmd.Strategy,
		"items", len(cmd.Items),
		"requester_id", cmd.Requester.ID,
	)

	valid, rejected := validateItems(cmd.Items)

	classification, err := o.classifier.Classify(ctx, valid, cmd.Progress)
	if err != nil {
		return nil, fmt.Errorf("classify batch %s: %w", cmd.BatchID, err)
	}
	resolution, err := o.resolver.Resolve(ctx, ResolveInput{
		Items:     valid,
		Conflicts: classification.Conflicts,
		Occupied:  classification.Occupied,
		Strategy:  cmd.Strategy,
		Choices:   cmd.Choices,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve batch %s: %w", cmd.BatchID, err)
	}

	if len(classification.Conflicts) > 0 {
		report.Conflicts = classification.Conflicts
		report.Decisions = resolution.Decisions
	}
	lookupFailed := make(map[string]error, len(classification.LookupFailures))
	for _, f := range classification.LookupFailures {
		lookupFailed[f.ItemID] = f.Err
		report.LookupFailures = append(report.LookupFailures, f.ItemID)
	}
	bySubject := make(map[string][]domain.ResolutionDecision)
	for _, d := range resolution.Decisions {
		bySubject[d.ItemID] = append(bySubject[d.ItemID], d)
	}

	var aborted error
	for i, item := range valid {
		final := resolution.Items[i]
		if aborted != nil {
			ir := newItemReport(item, final)
			ir.Status = domain.ItemFailed
			ir.Errors = append(ir.Errors, "batch aborted: "+aborted.Error())
			report.Items = append(report.Items, ir)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ir := o.processItem(ctx, cmd, item, final, bySubject[item.ID])
		if lookupErr, ok := lookupFailed[item.ID]; ok {
			ir.Warnings = append(ir.Warnings, fmt.Sprintf("schedule lookup failed, booked visits were not checked: %v", lookupErr))
		}
		if ir.abort != nil {
			aborted = ir.abort
		}
		report.Items = append(report.Items, ir.ItemReport)
	}
	report.Items = append(report.Items, rejected...)

	report.CompletedAt = o.now()
	report.Summarize()
	o.record(report)

	persistErr := o.persist(ctx, report)
	if aborted == nil && persistErr == nil {
		event := domain.NewBatchCompleted(report)
		o.publish(ctx, cmd.Requester.ID, &event)
	}

	o.logger.Info("batch run completed",
		"batch_id", report.BatchID,
		"conflicts", report.Summary.Conflicts,
		"committed", report.Summary.Committed,
		"awaiting_approval", report.Summary.AwaitingApproval,
		"denied", report.Summary.Denied,
		"failed", report.Summary.Failed,
	)

	if err := errors.Join(aborted, persistErr); err != nil {
		return report, err
	}
	return report, nil
}

// validateItems splits the batch into well-formed items and failed reports. The first occurrence
// of a duplicated ID wins.
func validateItems(items []domain.AdjustmentItem) ([]domain.AdjustmentItem, []domain.ItemReport) {
	valid := make([]domain.AdjustmentItem, 0, len(items))
	var rejected []domain.ItemReport
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		err := item.Validate()
		if err == nil {
			if _, dup := seen[item.ID]; dup {
				err = domain.NewValidationError("id", fmt.Sprintf("duplicate item id %q", item.ID))
			}
		}
		if err != nil {
			ir := newItemReport(item, item)
			ir.Status = domain.ItemFailed
			ir.Errors = []string{err.Error()}
			rejected = append(rejected, ir)
			continue
		}
		item.Priority, _ = domain.ParsePriority(string(item.Priority))
		seen[item.ID] = struct{}{}
		valid = append(valid, item)
	}
	return valid, rejected
}

func newItemReport(original, final domain.AdjustmentItem) domain.ItemReport {
	return domain.ItemReport{
		ItemID:         original.ID,
		SubjectName:    original.SubjectName,
		OriginalWindow: original.OriginalWindow,
		FinalWindow:    final.ProposedWindow,
	}
}

type itemOutcome struct {
	domain.ItemReport
	abort error
}

// disposition reduces the decisions an item is the subject of to one status. An empty status means
// the item goes on to the permission check.
func disposition(decisions []domain.ResolutionDecision) (domain.ItemStatus, []string) {
	var (
		status    domain.ItemStatus
		rationale []string
		rank      int
	)
	for _, d := range decisions {
		var s domain.ItemStatus
		var r int
		switch {
		case d.Failed:
			s, r = domain.ItemUnresolved, 6
		case d.Escalated:
			s, r = domain.ItemNeedsReview, 5
		case d.Action == domain.ActionCancel:
			s, r = domain.ItemCancelled, 4
		case d.Action == domain.ActionNegotiate:
			s, r = domain.ItemNegotiating, 3
		case d.Action == domain.ActionSkip:
			s, r = domain.ItemSkipped, 2
		default:
			continue
		}
		rationale = append(rationale, d.Rationale)
		if r > rank {
			status, rank = s, r
		}
	}
	return status, rationale
}

func (o *BatchOrchestrator) processItem(
	ctx context.Context,
	cmd RunBatchCommand,
	item, final domain.AdjustmentItem,
	decisions []domain.ResolutionDecision,
) itemOutcome {
	out := itemOutcome{ItemReport: newItemReport(item, final)}
	for _, d := range decisions {
		if d.Risk {
			out.Warnings = append(out.Warnings, "forced over an overlap: "+d.Rationale)
		}
	}

	if status, rationale := disposition(decisions); status != "" {
		out.Status = status
		if status == domain.ItemUnresolved {
			out.Errors = append(out.Errors, rationale...)
		} else {
			out.Warnings = append(out.Warnings, rationale...)
		}
		return out
	}

	if o.checker == nil {
		out.Status = domain.ItemFailed
		out.Errors = append(out.Errors, "no permission checker configured")
		return out
	}

	now := o.now()
	req := permission.NewRequestFromItem(cmd.BatchID, final, cmd.Requester, cmd.ReasonCode, cmd.Weather)
	result, err := o.checker.Evaluate(ctx, req, now)
	if err != nil {
		o.metrics.Counter(observability.MetricPermissionChecks, 1, observability.T("outcome", "error"))
		out.Status = domain.ItemFailed
		out.Errors = append(out.Errors, err.Error())
		return out
	}
	out.Tier = string(result.ResolvedTier)
	out.ImpactScore = result.ImpactScore
	out.Warnings = append(out.Warnings, violationMessages(result.Warnings)...)

	switch {
	case !result.Valid:
		o.metrics.Counter(observability.MetricPermissionChecks, 1, observability.T("outcome", "denied"))
		out.Status = domain.ItemDenied
		out.Errors = append(out.Errors, violationMessages(result.Errors)...)
		o.logger.Info("adjustment denied",
			"item_id", item.ID,
			"tier", result.ResolvedTier,
			"error", result.Err(),
		)
		return out

	case result.RequiredApproval:
		o.metrics.Counter(observability.MetricPermissionChecks, 1, observability.T("outcome", "approval"))
		o.openCase(ctx, req, result, &out)
		return out
	}

	o.metrics.Counter(observability.MetricPermissionChecks, 1, observability.T("outcome", "allowed"))
	if err := o.commit(ctx, req, nil); err != nil {
		out.Status = domain.ItemFailed
		out.Errors = append(out.Errors, err.Error())
		return out
	}
	out.Status = domain.ItemCommitted
	return out
}

func (o *BatchOrchestrator) openCase(
	ctx context.Context,
	req permission.AdjustmentRequest,
	result permission.ValidationResult,
	out *itemOutcome,
) {
	if o.approvals == nil {
		out.Status = domain.ItemFailed
		out.Errors = append(out.Errors, "approval required but no approval workflow configured")
		return
	}

	template := approval.BuildTemplate(result.ResolvedTier, result.ImpactScore)
	c, err := o.approvals.CreateCase(ctx, req, template)
	if c != nil {
		id := c.ID()
		out.ApprovalCaseID = &id
		o.metrics.Counter(observability.MetricApprovalCases, 1, observability.T("tier", string(c.Tier())))
	}
	if err != nil {
		out.Status = domain.ItemFailed
		out.Errors = append(out.Errors, err.Error())
		if errors.Is(err, approval.ErrWorkflowIntegrity) {
			out.abort = err
		}
		return
	}

	if c.Status() == approval.CaseStatusApproved {
		out.Status = domain.ItemCommitted
		return
	}
	out.Status = domain.ItemAwaitingApproval
}

// OnCaseApproved commits the adjustment of an approved case.
func (o *BatchOrchestrator) OnCaseApproved(ctx context.Context, c *approval.ApprovalCase) error {
	req := c.Request()
	if req.BatchID != "" {
		ctx = observability.WithBatchID(ctx, req.BatchID)
	}
	id := c.ID()
	return o.commit(ctx, req, &id)
}

// commit materializes one adjustment in its own transaction, then counts it against the requester.
func (o *BatchOrchestrator) commit(ctx context.Context, req permission.AdjustmentRequest, caseID *uuid.UUID) error {
	if o.committer == nil {
		return errors.New("no committer configured")
	}

	now := o.now()
	commit := domain.Commit{
		BatchID:        req.BatchID,
		Item:           req.Item(),
		ApprovalCaseID: caseID,
		CommittedAt:    now,
	}
	err := sharedApplication.WithUnitOfWork(ctx, o.uow, func(txCtx context.Context) error {
		return o.committer.Commit(txCtx, commit)
	})
	if err != nil {
		o.logger.Error("adjustment commit failed",
			"item_id", req.ItemID,
			"error", err,
		)
		return fmt.Errorf("commit item %s: %w", req.ItemID, err)
	}

	if o.checker != nil {
		if err := o.checker.RecordUsage(ctx, req, now); err != nil {
			o.logger.Warn("usage not recorded", "item_id", req.ItemID, "error", err)
		}
	}

	o.logger.Info("adjustment committed",
		"item_id", req.ItemID,
		"new_start", commit.Item.ProposedWindow.Start,
		"minutes", commit.Item.ProposedWindow.DurationMinutes,
	)
	event := domain.NewAdjustmentCommitted(commit)
	o.publish(ctx, req.Requester.ID, &event)
	return nil
}

func (o *BatchOrchestrator) persist(ctx context.Context, report *domain.BatchReport) error {
	var errs []error
	if o.conflicts != nil && len(report.Conflicts) > 0 {
		records := make([]domain.ConflictRecord, 0, len(report.Conflicts))
		for i, c := range report.Conflicts {
			records = append(records, domain.ConflictRecord{
				Conflict:   *c,
				Decision:   report.Decisions[i],
				RecordedAt: report.CompletedAt,
			})
		}
		if err := o.conflicts.SaveAll(ctx, report.BatchID, records); err != nil {
			errs = append(errs, fmt.Errorf("save conflicts: %w", err))
		}
	}
	if o.reports != nil {
		if err := o.reports.Save(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("save report: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		o.logger.Error("batch report not persisted", "batch_id", report.BatchID, "error", err)
		return err
	}
	return nil
}

func (o *BatchOrchestrator) record(report *domain.BatchReport) {
	strategy := observability.T("strategy", string(report.Strategy))
	o.metrics.Counter(observability.MetricBatchRuns, 1, strategy)
	o.metrics.Counter(observability.MetricBatchConflicts, int64(len(report.Conflicts)), strategy)
	o.metrics.Timing(observability.MetricBatchDuration, report.CompletedAt.Sub(report.StartedAt), strategy)
	if n := len(report.LookupFailures); n > 0 {
		o.metrics.Counter(observability.MetricLookupFailures, int64(n))
	}
	for _, c := range report.Conflicts {
		o.metrics.Histogram(observability.MetricSeverityScore, c.SeverityScore, observability.T("kind", string(c.Kind)))
	}
	for _, item := range report.Items {
		o.metrics.Counter(observability.MetricBatchItems, 1, observability.T("status", string(item.Status)))
	}
}

func (o *BatchOrchestrator) publish(ctx context.Context, actorID string, events ...sharedDomain.DomainEvent) {
	sharedApplication.ApplyEventMetadata(events, sharedDomain.EventMetadata{
		CorrelationID: observability.CorrelationIDFromContext(ctx),
		ActorID:       actorID,
	})
	sharedApplication.NotifyAll(ctx, o.gateway, events)
}

func violationMessages(violations []permission.Violation) []string {
	if len(violations) == 0 {
		return nil
	}
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.Check + ": " + v.Message
	}
	return msgs
}
