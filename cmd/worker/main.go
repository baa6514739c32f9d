package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/carevisit/adapter/api"
	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/app"
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
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = observability.NewLogger(observability.ServiceLogConfig(
		"carevisit-worker", cli.Version, cfg.LogLevel, cfg.LogFormat, cfg.IsDevelopment()))
	logger.Info("starting carevisit worker")

	// The worker always relays, whatever the CLI processes are configured to do.
	cfg.OutboxEnabled = true
	cfg.OutboxRelayInProcess = true

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	processor := container.OutboxProcessor
	container.Start(ctx)

	cleanupTicker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				cutoff := time.Now().AddDate(0, 0, -cfg.OutboxRetentionDays)
				deleted, err := container.OutboxRepo.DeleteOld(ctx, cutoff)
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
				}
			}
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		serverCfg := api.DefaultServerConfig()
		serverCfg.Addr = cfg.WorkerHealthAddr
		statusSrv := api.NewServer(serverCfg, api.NewStatusHandler(api.StatusHandlerConfig{
			Batches:   container.GetBatchReportHandler,
			GetCase:   container.GetCaseHandler,
			ListCases: container.ListCasesHandler,
			Health:    container.Health,
			Outbox:    processor,
			Logger:    logger,
		}), logger)

		go func() {
			if err := statusSrv.Start(); err != nil {
				logger.Error("status server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown error", "error", err)
			}
		}()
	}

	statsTicker := time.NewTicker(cfg.OutboxStatsInterval)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				stats := processor.GetStats()
				logger.Info("outbox stats",
					"running", stats.IsRunning,
					"published", stats.PublishedCount,
					"failed", stats.FailedCount,
					"dead", stats.DeadCount,
					"lag_seconds", stats.LagSeconds,
					"last_error", stats.LastError,
				)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down worker")

	processor.Stop()
	logger.Info("worker stopped")
}
