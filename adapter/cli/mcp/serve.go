package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/carevisit/internal/mcp"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server over HTTP on MCP_ADDR.

The server shares the CLI's database and schedule source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return errors.New("application not initialized - database connection required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := newServerLogger(cmd.ErrOrStderr(), cfg.IsDevelopment())

		err = mcpinternal.Serve(cmd.Context(), cfg, app, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func newServerLogger(out io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}
