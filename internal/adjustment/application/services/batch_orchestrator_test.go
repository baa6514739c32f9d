package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/persistence"
	approvalServices "github.com/felixgeelhaar/carevisit/internal/approval/application/services"
	approval "github.com/felixgeelhaar/carevisit/internal/approval/domain"
	approvalPersistence "github.com/felixgeelhaar/carevisit/internal/approval/infrastructure/persistence"
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	sharedDomain "github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var runClock = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Evaluate(ctx context.Context, req permission.AdjustmentRequest, now time.Time) (permission.ValidationResult, error) {
	args := m.Called(ctx, req, now)
	return args.Get(0).(permission.ValidationResult), args.Error(1)
}

func (m *mockChecker) RecordUsage(ctx context.Context, req permission.AdjustmentRequest, now time.Time) error {
	return m.Called(ctx, req, now).Error(0)
}

func forItem(id string) interface{} {
	return mock.MatchedBy(func(req permission.AdjustmentRequest) bool { return req.ItemID == id })
}

func allowed() permission.ValidationResult {
	return permission.ValidationResult{Valid: true, ResolvedTier: permission.TierNormal, ImpactScore: 12}
}

type recordingGateway struct {
	mu     sync.Mutex
	events []sharedDomain.DomainEvent
}

func (g *recordingGateway) Notify(_ context.Context, event sharedDomain.DomainEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, event)
}

func (g *recordingGateway) count(routingKey string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range g.events {
		if e.RoutingKey() == routingKey {
			n++
		}
	}
	return n
}

// failingCommitter fails for the listed items and delegates the rest.
type failingCommitter struct {
	inner domain.AdjustmentCommitter
	fail  map[string]bool
}

func (c *failingCommitter) Commit(ctx context.Context, commit domain.Commit) error {
	if c.fail[commit.Item.ID] {
		return errors.New("disk full")
	}
	return c.inner.Commit(ctx, commit)
}

type harness struct {
	orchestrator *BatchOrchestrator
	workflow     *approvalServices.WorkflowEngine
	checker      *mockChecker
	schedules    *persistence.ScheduleRepository
	conflicts    *persistence.ConflictRepository
	reports      *persistence.ReportRepository
	gateway      *recordingGateway
	metrics      *observability.InMemoryMetrics
}

func newHarness(t *testing.T, store domain.ScheduleStore, committer func(domain.AdjustmentCommitter) domain.AdjustmentCommitter) *harness {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))

	h := &harness{
		checker:   new(mockChecker),
		schedules: persistence.NewScheduleRepository(conn),
		conflicts: persistence.NewConflictRepository(conn),
		reports:   persistence.NewReportRepository(conn),
		gateway:   &recordingGateway{},
		metrics:   observability.NewInMemoryMetrics(),
	}
	if store == nil {
		store = h.schedules
	}
	var commit domain.AdjustmentCommitter = h.schedules
	if committer != nil {
		commit = committer(h.schedules)
	}
	uow := database.NewUnitOfWork(conn)

	h.workflow = approvalServices.NewWorkflowEngine(approvalPersistence.NewCaseRepository(conn), uow, h.gateway, nil)
	h.workflow.SetClock(func() time.Time { return runClock })

	h.orchestrator = NewBatchOrchestrator(OrchestratorDeps{
		Classifier: NewConflictClassifier(store, nil, DefaultClassifierConfig(), nil),
		Resolver:   NewResolutionEngine(DefaultResolverConfig(), nil),
		Checker:    h.checker,
		Approvals:  h.workflow,
		Committer:  commit,
		Conflicts:  h.conflicts,
		Reports:    h.reports,
		UnitOfWork: uow,
		Gateway:    h.gateway,
		Metrics:    h.metrics,
	}, nil)
	h.orchestrator.SetClock(func() time.Time { return runClock })
	h.workflow.SetListener(h.orchestrator)
	return h
}

func command(batchID string, strategy domain.Strategy, items ...domain.AdjustmentItem) RunBatchCommand {
	return RunBatchCommand{
		BatchID:    batchID,
		Items:      items,
		Strategy:   strategy,
		Requester:  permission.Requester{ID: "nurse-1", Role: "nurse"},
		ReasonCode: "staff_shortage",
	}
}

func moved(id string, from time.Time, to time.Time, minutes int) domain.AdjustmentItem {
	i := item(id, from, minutes, domain.PriorityMedium)
	i.ProposedWindow = domain.MustTimeWindow(to, minutes)
	return i
}

func itemsByID(report *domain.BatchReport) map[string]domain.ItemReport {
	out := make(map[string]domain.ItemReport, len(report.Items))
	for _, ir := range report.Items {
		if _, ok := out[ir.ItemID]; !ok {
			out[ir.ItemID] = ir
		}
	}
	return out
}

func TestBatchOrchestrator_CommitsAllowedItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.checker.On("Evaluate", mock.Anything, mock.Anything, runClock).Return(allowed(), nil)
	h.checker.On("RecordUsage", mock.Anything, mock.Anything, runClock).Return(nil)

	report, err := h.orchestrator.Run(ctx, command("b-1", domain.StrategySmart,
		moved("a", at(9, 0), at(11, 0), 60),
		moved("b", at(14, 0), at(15, 0), 45),
	))
	require.NoError(t, err)

	assert.Equal(t, "b-1", report.BatchID)
	assert.Equal(t, 2, report.Summary.Committed)
	assert.Empty(t, report.Conflicts)
	for _, ir := range report.Items {
		assert.Equal(t, domain.ItemCommitted, ir.Status)
		assert.Equal(t, "normal", ir.Tier)
	}

	archived, err := h.schedules.ArchivedCount(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	found, err := h.schedules.FindSchedulesNear(ctx, domain.MustTimeWindow(at(11, 0), 60), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)

	stored, err := h.reports.FindByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, report.Summary, stored.Summary)

	assert.Equal(t, 2, h.gateway.count(domain.RoutingKeyAdjustmentCommitted))
	assert.Equal(t, 1, h.gateway.count(domain.RoutingKeyBatchCompleted))
	assert.Equal(t, int64(1), h.metrics.GetCounter(observability.MetricBatchRuns, observability.T("strategy", "smart")))
	assert.Equal(t, int64(2), h.metrics.GetCounter(observability.MetricBatchItems, observability.T("status", "committed")))
	h.checker.AssertNumberOfCalls(t, "RecordUsage", 2)
}

func TestBatchOrchestrator_RoutesByPermission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	h.checker.On("Evaluate", mock.Anything, forItem("deny"), runClock).Return(permission.ValidationResult{
		ResolvedTier: permission.TierNormal,
		Errors:       []permission.Violation{{Check: permission.CheckMagnitude, Message: "shift of 30h exceeds the 24h limit"}},
	}, nil)
	h.checker.On("Evaluate", mock.Anything, forItem("review"), runClock).Return(permission.ValidationResult{
		Valid: true, RequiredApproval: true, ResolvedTier: permission.TierAdvanced, ImpactScore: 50,
	}, nil)
	h.checker.On("Evaluate", mock.Anything, forItem("auto"), runClock).Return(permission.ValidationResult{
		Valid: true, RequiredApproval: true, ResolvedTier: permission.TierNormal, ImpactScore: 20,
	}, nil)
	h.checker.On("Evaluate", mock.Anything, forItem("broken"), runClock).Return(permission.ValidationResult{}, errors.New("usage store down"))
	h.checker.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	malformed := moved("bad", at(8, 0), at(8, 0), 30)
	malformed.ProposedWindow.DurationMinutes = 0

	report, err := h.orchestrator.Run(ctx, command("b-2", domain.StrategySmart,
		moved("deny", at(9, 0), at(15, 0), 30),
		moved("review", at(10, 0), at(11, 0), 30),
		moved("auto", at(12, 0), at(13, 0), 30),
		moved("broken", at(16, 0), at(17, 0), 30),
		malformed,
		moved("auto", at(7, 0), at(7, 30), 30),
	))
	require.NoError(t, err)
	require.Len(t, report.Items, 6)

	items := itemsByID(report)
	assert.Equal(t, domain.ItemDenied, items["deny"].Status)
	assert.Equal(t, []string{"magnitude: shift of 30h exceeds the 24h limit"}, items["deny"].Errors)

	assert.Equal(t, domain.ItemAwaitingApproval, items["review"].Status)
	require.NotNil(t, items["review"].ApprovalCaseID)
	assert.Equal(t, "advanced", items["review"].Tier)

	assert.Equal(t, domain.ItemCommitted, items["auto"].Status)
	require.NotNil(t, items["auto"].ApprovalCaseID)

	assert.Equal(t, domain.ItemFailed, items["broken"].Status)
	assert.Contains(t, items["broken"].Errors[0], "usage store down")

	assert.Equal(t, domain.ItemFailed, items["bad"].Status)
	assert.Contains(t, items["bad"].Errors[0], "duration must be positive")

	duplicate := report.Items[5]
	assert.Equal(t, "auto", duplicate.ItemID)
	assert.Equal(t, domain.ItemFailed, duplicate.Status)
	assert.Contains(t, duplicate.Errors[0], "duplicate item id")

	assert.Equal(t, domain.BatchSummary{Items: 6, Committed: 1, AwaitingApproval: 1, Denied: 1, Failed: 3}, report.Summary)

	archived, err := h.schedules.ArchivedCount(ctx, "b-2")
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	caseID := *items["review"].ApprovalCaseID
	c, err := h.workflow.SubmitDecision(ctx, caseID, approval.Submission{StepIndex: 0, Role: approval.RoleSeniorRecorder, Actor: "sr-1", Approve: true})
	require.NoError(t, err)
	assert.Equal(t, approval.CaseStatusInProgress, c.Status())
	c, err = h.workflow.SubmitDecision(ctx, caseID, approval.Submission{StepIndex: 1, Role: approval.RoleSupervisor, Actor: "sup-1", Approve: true})
	require.NoError(t, err)
	assert.Equal(t, approval.CaseStatusApproved, c.Status())

	archived, err = h.schedules.ArchivedCount(ctx, "b-2")
	require.NoError(t, err)
	assert.Equal(t, 2, archived, "approving the case commits the adjustment")
	assert.Equal(t, 2, h.gateway.count(domain.RoutingKeyAdjustmentCommitted))
}

func TestBatchOrchestrator_ConflictsAreReportedAndPersisted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.checker.On("Evaluate", mock.Anything, mock.Anything, runClock).Return(allowed(), nil)
	h.checker.On("RecordUsage", mock.Anything, mock.Anything, runClock).Return(nil)

	report, err := h.orchestrator.Run(ctx, command("b-3", domain.StrategySkip,
		moved("first", at(8, 0), at(9, 0), 60),
		moved("second", at(8, 0), at(9, 30), 60),
	))
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, report.Conflicts[0].ID, report.Decisions[0].ConflictID)

	items := itemsByID(report)
	assert.Equal(t, domain.ItemCommitted, items["first"].Status)
	assert.Equal(t, domain.ItemSkipped, items["second"].Status)
	assert.NotEmpty(t, items["second"].Warnings)

	records, err := h.conflicts.FindByBatch(ctx, "b-3")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "second", records[0].Conflict.Subject.ID)
	assert.Equal(t, domain.ActionSkip, records[0].Decision.Action)
}

func TestBatchOrchestrator_AutoMovesBeforeCommitting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.checker.On("Evaluate", mock.Anything, mock.Anything, runClock).Return(allowed(), nil)
	h.checker.On("RecordUsage", mock.Anything, mock.Anything, runClock).Return(nil)

	report, err := h.orchestrator.Run(ctx, command("b-4", domain.StrategyAuto,
		moved("first", at(8, 0), at(9, 0), 60),
		moved("second", at(8, 0), at(9, 30), 60),
	))
	require.NoError(t, err)

	items := itemsByID(report)
	require.Equal(t, domain.ItemCommitted, items["second"].Status)
	assert.False(t, domain.Overlaps(items["first"].FinalWindow, items["second"].FinalWindow, 15*time.Minute))

	h.checker.AssertCalled(t, "Evaluate", mock.Anything, mock.MatchedBy(func(req permission.AdjustmentRequest) bool {
		return req.ItemID == "second" && req.ProposedWindow.Equal(items["second"].FinalWindow)
	}), runClock)
}

func TestBatchOrchestrator_LookupFailureIsAWarning(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{failFor: map[time.Time]error{at(11, 0): errors.New("timeout")}}
	h := newHarness(t, store, nil)
	h.checker.On("Evaluate", mock.Anything, mock.Anything, runClock).Return(allowed(), nil)
	h.checker.On("RecordUsage", mock.Anything, mock.Anything, runClock).Return(nil)

	report, err := h.orchestrator.Run(ctx, command("b-5", domain.StrategySmart, moved("a", at(9, 0), at(11, 0), 60)))
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, report.LookupFailures)
	require.Len(t, report.Items, 1)
	assert.Equal(t, domain.ItemCommitted, report.Items[0].Status)
	require.Len(t, report.Items[0].Warnings, 1)
	assert.Contains(t, report.Items[0].Warnings[0], "timeout")
	assert.Equal(t, int64(1), h.metrics.GetCounter(observability.MetricLookupFailures))
}

func TestBatchOrchestrator_CommitFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, func(inner domain.AdjustmentCommitter) domain.AdjustmentCommitter {
		return &failingCommitter{inner: inner, fail: map[string]bool{"a": true}}
	})
	h.checker.On("Evaluate", mock.Anything, mock.Anything, runClock).Return(allowed(), nil)
	h.checker.On("RecordUsage", mock.Anything, mock.Anything, runClock).Return(nil)

	report, err := h.orchestrator.Run(ctx, command("b-6", domain.StrategySmart,
		moved("a", at(9, 0), at(11, 0), 60),
		moved("b", at(14, 0), at(15, 0), 45),
	))
	require.NoError(t, err)

	items := itemsByID(report)
	assert.Equal(t, domain.ItemFailed, items["a"].Status)
	assert.Contains(t, items["a"].Errors[0], "disk full")
	assert.Equal(t, domain.ItemCommitted, items["b"].Status)

	archived, err := h.schedules.ArchivedCount(ctx, "b-6")
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
	h.checker.AssertNumberOfCalls(t, "RecordUsage", 1)
}

func TestBatchOrchestrator_Validation(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, err := h.orchestrator.Run(context.Background(), command("b-7", "random"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	report, err := h.orchestrator.Run(context.Background(), RunBatchCommand{Requester: permission.Requester{ID: "nurse-1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, report.BatchID)
	assert.Equal(t, domain.StrategySmart, report.Strategy)
	assert.Empty(t, report.Items)
	h.checker.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
}

func TestDisposition(t *testing.T) {
	tests := []struct {
		name      string
		decisions []domain.ResolutionDecision
		want      domain.ItemStatus
	}{
		{"no decisions", nil, ""},
		{"applied", []domain.ResolutionDecision{{Action: domain.ActionReschedule}}, ""},
		{"skip", []domain.ResolutionDecision{{Action: domain.ActionSkip}, {Action: domain.ActionReschedule}}, domain.ItemSkipped},
		{"cancel beats negotiate", []domain.ResolutionDecision{{Action: domain.ActionNegotiate}, {Action: domain.ActionCancel}}, domain.ItemCancelled},
		{"escalated", []domain.ResolutionDecision{{Action: domain.ActionRescheduleManual, Escalated: true}}, domain.ItemNeedsReview},
		{"failed wins", []domain.ResolutionDecision{{Action: domain.ActionSkip}, {Action: domain.ActionReschedule, Failed: true, Escalated: true}}, domain.ItemUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := disposition(tt.decisions)
			assert.Equal(t, tt.want, got)
		})
	}
}
