package cli

import (
	"context"
	"time"

	adjustmentQueries "github.com/felixgeelhaar/carevisit/internal/adjustment/application/queries"
	adjustmentServices "github.com/felixgeelhaar/carevisit/internal/adjustment/application/services"
	adjustmentDomain "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	approvalQueries "github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	approvalServices "github.com/felixgeelhaar/carevisit/internal/approval/application/services"
	permissionServices "github.com/felixgeelhaar/carevisit/internal/permission/application/services"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
)

// ScheduleBook reads and stores booked visits.
type ScheduleBook interface {
	adjustmentDomain.ScheduleStore
	Upsert(ctx context.Context, s adjustmentDomain.ExistingSchedule, now time.Time) error
}

// App holds the CLI application dependencies.
type App struct {
	// Batch processing
	Orchestrator          *adjustmentServices.BatchOrchestrator
	GetBatchReportHandler *adjustmentQueries.GetBatchReportHandler

	// Permissions
	Evaluator *permissionServices.PermissionEvaluator

	// Approvals
	Workflow         *approvalServices.WorkflowEngine
	GetCaseHandler   *approvalQueries.GetCaseHandler
	ListCasesHandler *approvalQueries.ListCasesHandler

	// Booked visits
	Schedules ScheduleBook

	Health *observability.HealthRegistry

	// Location interprets wall-clock input such as "2026-03-04 10:00".
	Location *time.Location
	Now      func() time.Time
}

// NewApp creates a new CLI application with the provided services.
func NewApp(
	orchestrator *adjustmentServices.BatchOrchestrator,
	getBatchReportHandler *adjustmentQueries.GetBatchReportHandler,
	evaluator *permissionServices.PermissionEvaluator,
	workflow *approvalServices.WorkflowEngine,
	getCaseHandler *approvalQueries.GetCaseHandler,
	listCasesHandler *approvalQueries.ListCasesHandler,
) *App {
	return &App{
		Orchestrator:          orchestrator,
		GetBatchReportHandler: getBatchReportHandler,
		Evaluator:             evaluator,
		Workflow:              workflow,
		GetCaseHandler:        getCaseHandler,
		ListCasesHandler:      listCasesHandler,
		Location:              time.UTC,
		Now:                   time.Now,
	}
}

// SetSchedules updates the schedule book.
func (a *App) SetSchedules(s ScheduleBook) {
	a.Schedules = s
}

// SetHealth updates the health registry.
func (a *App) SetHealth(h *observability.HealthRegistry) {
	a.Health = h
}

// SetLocation updates the location used to parse wall-clock times.
func (a *App) SetLocation(loc *time.Location) {
	if loc != nil {
		a.Location = loc
	}
}

// SetClock replaces the clock.
func (a *App) SetClock(now func() time.Time) {
	if now != nil {
		a.Now = now
	}
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
