package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/app"
	mcpinternal "github.com/felixgeelhaar/carevisit/internal/mcp"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.DefaultLogConfig())

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = observability.NewLogger(observability.ServiceLogConfig(
		"carevisit-mcp", cli.Version, cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment()))

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()
	container.Start(ctx)

	cliApp := mcpinternal.NewCLIApp(container)

	if err := mcpinternal.Serve(ctx, cfg, cliApp, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
