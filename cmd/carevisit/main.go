package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/adapter/cli/approval"
	"github.com/felixgeelhaar/carevisit/adapter/cli/batch"
	"github.com/felixgeelhaar/carevisit/adapter/cli/mcp"
	"github.com/felixgeelhaar/carevisit/adapter/cli/permission"
	"github.com/felixgeelhaar/carevisit/adapter/cli/schedule"
	"github.com/felixgeelhaar/carevisit/internal/app"
	mcpinternal "github.com/felixgeelhaar/carevisit/internal/mcp"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.DefaultLogConfig())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", Timezone: "UTC", DatabaseDriver: "sqlite", SQLitePath: "carevisit.db"}
	}

	logger = observability.NewLogger(observability.ServiceLogConfig(
		"carevisit", cli.Version, cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment()))
	cli.SetLogger(logger)

	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		// Commands report that the database is required.
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()
		container.Start(ctx)
		cliApp = mcpinternal.NewCLIApp(container)
	}
	cli.SetApp(cliApp)

	cli.AddCommand(batch.Cmd)
	cli.AddCommand(schedule.Cmd)
	cli.AddCommand(permission.Cmd)
	cli.AddCommand(approval.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.ExecuteContext(ctx)
}

