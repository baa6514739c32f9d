package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/application/queries"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	permissionDomain "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type batchRunInput struct {
	BatchID       string                     `json:"batch_id,omitempty"`
	Strategy      string                     `json:"strategy,omitempty"`
	RequesterID   string                     `json:"requester_id" jsonschema:"required"`
	RequesterRole string                     `json:"requester_role" jsonschema:"required"`
	ReasonCode    string                     `json:"reason_code,omitempty"`
	Weather       string                     `json:"weather,omitempty"`
	Items         []cli.ItemInput            `json:"items" jsonschema:"required"`
	Choices       map[string]cli.ChoiceInput `json:"choices,omitempty"`
}

type batchShowInput struct {
	BatchID   string `json:"batch_id" jsonschema:"required"`
	Conflicts bool   `json:"conflicts,omitempty"`
}

// batchRunResult carries a report even when persistence or a follow-up step failed.
type batchRunResult struct {
	Report *domain.BatchReport `json:"report"`
	Error  string              `json:"error,omitempty"`
}

func registerBatchTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("batch.run").
		Description("Process a batch of proposed visit reschedules: detect conflicts, resolve them with a strategy (auto, manual, skip, smart) and commit or route each item for approval").
		Handler(func(ctx context.Context, input batchRunInput) (*batchRunResult, error) {
			if app == nil || app.Orchestrator == nil {
				return nil, errors.New("batch processing requires database connection")
			}
			if strings.TrimSpace(input.RequesterID) == "" {
				return nil, errors.New("requester_id is required")
			}

			batch := cli.BatchInput{
				BatchID:    input.BatchID,
				Strategy:   input.Strategy,
				Requester:  permissionDomain.Requester{ID: input.RequesterID, Role: input.RequesterRole},
				ReasonCode: input.ReasonCode,
				Weather:    input.Weather,
				Items:      input.Items,
				Choices:    input.Choices,
			}
			command, err := batch.ToCommand(app.Location)
			if err != nil {
				return nil, err
			}

			report, err := app.Orchestrator.Run(ctx, command)
			if report == nil {
				return nil, fmt.Errorf("failed to run batch: %w", err)
			}
			result := &batchRunResult{Report: report}
			if err != nil {
				result.Error = err.Error()
			}
			return result, nil
		})

	srv.Tool("batch.show").
		Description("Show a stored batch report, optionally with its conflict records").
		Handler(func(ctx context.Context, input batchShowInput) (*queries.BatchReportView, error) {
			if app == nil || app.GetBatchReportHandler == nil {
				return nil, errors.New("batch reports require database connection")
			}
			if input.BatchID == "" {
				return nil, errors.New("batch_id is required")
			}
			return app.GetBatchReportHandler.Handle(ctx, queries.GetBatchReportQuery{
				BatchID:       input.BatchID,
				WithConflicts: input.Conflicts,
			})
		})

	return nil
}
