package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose care visit data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	if err := registerApprovalResources(srv, deps); err != nil {
		return err
	}
	if err := registerScheduleResources(srv, deps); err != nil {
		return err
	}
	if err := registerSystemResources(srv, deps); err != nil {
		return err
	}

	return nil
}

func jsonContent(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}

func registerApprovalResources(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	// Cases waiting for a decision
	srv.Resource("carevisit://approvals/open").
		Name("Open Approvals").
		Description("Approval cases that are pending or in progress").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.ListCasesHandler == nil {
				return nil, fmt.Errorf("approval listing requires database connection")
			}

			open := make([]queries.CaseDTO, 0)
			for _, status := range []domain.CaseStatus{domain.CaseStatusPending, domain.CaseStatusInProgress} {
				cases, err := app.ListCasesHandler.Handle(ctx, queries.ListCasesQuery{
					Status: string(status),
					Limit:  100,
				})
				if err != nil {
					return nil, err
				}
				open = append(open, cases...)
			}
			return jsonContent(uri, open)
		})

	srv.Resource("carevisit://approvals/recent").
		Name("Recent Approvals").
		Description("The 50 most recent approval cases in any status").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.ListCasesHandler == nil {
				return nil, fmt.Errorf("approval listing requires database connection")
			}

			cases, err := app.ListCasesHandler.Handle(ctx, queries.ListCasesQuery{Limit: 50})
			if err != nil {
				return nil, err
			}
			return jsonContent(uri, cases)
		})

	return nil
}

func registerScheduleResources(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Resource("carevisit://schedule/today").
		Name("Today's Visits").
		Description("Booked visits for today in the configured timezone").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.Schedules == nil {
				return nil, fmt.Errorf("schedule view requires database connection")
			}

			schedules, err := app.Schedules.FindSchedulesNear(ctx, cli.DayWindow(app.Now(), app.Location), 0)
			if err != nil {
				return nil, err
			}
			return jsonContent(uri, map[string]any{
				"date":      app.Now().In(app.Location).Format(dateLayout),
				"timezone":  app.Location.String(),
				"schedules": schedules,
			})
		})

	return nil
}

func registerSystemResources(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Resource("carevisit://system/health").
		Name("Health").
		Description("Health of the database, cache, broker and schedule source").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.Health == nil {
				return jsonContent(uri, map[string]string{"status": "unknown"})
			}
			return jsonContent(uri, app.Health.GetOverallHealth(ctx))
		})

	srv.Resource("carevisit://system/version").
		Name("Version").
		Description("Build information").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			return jsonContent(uri, map[string]string{
				"version":   cli.Version,
				"commit":    cli.Commit,
				"buildDate": cli.BuildDate,
			})
		})

	return nil
}
