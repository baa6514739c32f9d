package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	mcplocal "github.com/felixgeelhaar/carevisit/adapter/mcp"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
)

const serverName = "carevisit-mcp"

// Serve exposes the batch, permission and approval operations of cliApp over MCP on cfg.MCPAddr.
// It blocks until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	switch {
	case cfg == nil:
		return errors.New("mcp: config is required")
	case cliApp == nil:
		return errors.New("mcp: application is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	srv, err := newServer(cliApp, logger)
	if err != nil {
		return err
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "auth", cfg.MCPAuthToken != "")
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(middlewareStack(cfg, logger)...))
}

// newServer registers tools, resources and prompts. Only tool registration is fatal.
func newServer(cliApp *cli.App, logger *slog.Logger) (*mcpgo.Server, error) {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    serverName,
		Version: cli.Version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})

	deps := mcplocal.ToolDependencies{App: cliApp}
	if err := mcplocal.RegisterCLITools(srv, deps); err != nil {
		return nil, err
	}
	if err := mcplocal.RegisterResources(srv, deps); err != nil {
		logger.Warn("batch and approval resources unavailable", "error", err)
	}
	if err := mcplocal.RegisterPrompts(srv, deps); err != nil {
		logger.Warn("review prompts unavailable", "error", err)
	}
	return srv, nil
}

func middlewareStack(cfg *config.Config, logger *slog.Logger) []middleware.Middleware {
	log := slogAdapter{logger: logger}
	stack := middleware.DefaultStack(log)
	if cfg.MCPAuthToken == "" {
		logger.Warn("MCP_AUTH_TOKEN is empty; tools that commit adjustments and decide approvals are open to any caller")
		return stack
	}

	operator := &middleware.Identity{ID: "carevisit-operator", Name: "CareVisit operator"}
	auth := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		cfg.MCPAuthToken: operator,
	}))
	return append([]middleware.Middleware{middleware.Auth(auth, middleware.WithAuthLogger(log))}, stack...)
}

// slogAdapter satisfies the middleware logger with slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(msg string, fields ...middleware.Field) { a.log(slog.LevelDebug, msg, fields) }
func (a slogAdapter) Info(msg string, fields ...middleware.Field)  { a.log(slog.LevelInfo, msg, fields) }
func (a slogAdapter) Warn(msg string, fields ...middleware.Field)  { a.log(slog.LevelWarn, msg, fields) }
func (a slogAdapter) Error(msg string, fields ...middleware.Field) { a.log(slog.LevelError, msg, fields) }

func (a slogAdapter) log(level slog.Level, msg string, fields []middleware.Field) {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
