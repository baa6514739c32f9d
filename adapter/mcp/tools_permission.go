package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type permissionCheckInput struct {
	Item          cli.ItemInput `json:"item" jsonschema:"required"`
	RequesterID   string        `json:"requester_id" jsonschema:"required"`
	RequesterRole string        `json:"requester_role" jsonschema:"required"`
	ReasonCode    string        `json:"reason_code,omitempty"`
	Weather       string        `json:"weather,omitempty"`
}

func registerPermissionTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("permission.check").
		Description("Evaluate one proposed reschedule: permission tier, checks, impact score and whether approval is required. Nothing is committed").
		Handler(func(ctx context.Context, input permissionCheckInput) (*domain.ValidationResult, error) {
			if app == nil || app.Evaluator == nil {
				return nil, errors.New("permission checks require database connection")
			}

			req, err := cli.RequestInput{
				ItemInput:  input.Item,
				Requester:  domain.Requester{ID: input.RequesterID, Role: input.RequesterRole},
				ReasonCode: input.ReasonCode,
				Weather:    input.Weather,
			}.ToRequest(app.Location)
			if err != nil {
				return nil, err
			}

			result, err := app.Evaluator.Evaluate(ctx, req, app.Now())
			if err != nil {
				return nil, err
			}
			return &result, nil
		})

	return nil
}
