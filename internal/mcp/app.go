package mcp

import (
	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container) *cli.App {
	cliApp := cli.NewApp(
		container.Orchestrator,
		container.GetBatchReportHandler,
		container.Evaluator,
		container.Workflow,
		container.GetCaseHandler,
		container.ListCasesHandler,
	)
	cliApp.SetSchedules(container.ScheduleBook())
	cliApp.SetHealth(container.Health)
	if container.Config != nil {
		cliApp.SetLocation(container.Config.Location())
	}
	return cliApp
}
