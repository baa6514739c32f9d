package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type caseIDInput struct {
	CaseID string `json:"case_id" jsonschema:"required"`
}

type approvalListInput struct {
	Status  string `json:"status,omitempty"`
	BatchID string `json:"batch_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type approvalDecideInput struct {
	CaseID   string `json:"case_id" jsonschema:"required"`
	Approve  bool   `json:"approve"`
	Role     string `json:"role" jsonschema:"required"`
	Actor    string `json:"actor" jsonschema:"required"`
	Step     *int   `json:"step,omitempty"`
	Comments string `json:"comments,omitempty"`
}

type approvalDecideResult struct {
	Case  queries.CaseDTO `json:"case"`
	Error string          `json:"error,omitempty"`
}

func registerApprovalTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("approval.show").
		Description("Show an approval case with its steps and history").
		Handler(func(ctx context.Context, input caseIDInput) (*queries.CaseDTO, error) {
			if app == nil || app.GetCaseHandler == nil {
				return nil, errors.New("approval cases require database connection")
			}
			id, err := parseUUID(input.CaseID)
			if err != nil {
				return nil, err
			}
			return app.GetCaseHandler.Handle(ctx, queries.GetCaseQuery{CaseID: id})
		})

	srv.Tool("approval.list").
		Description("List approval cases, newest first").
		Handler(func(ctx context.Context, input approvalListInput) ([]queries.CaseDTO, error) {
			if app == nil || app.ListCasesHandler == nil {
				return nil, errors.New("approval cases require database connection")
			}
			limit := input.Limit
			if limit <= 0 {
				limit = 50
			}
			return app.ListCasesHandler.Handle(ctx, queries.ListCasesQuery{
				Status:  strings.ToLower(input.Status),
				BatchID: input.BatchID,
				Limit:   limit,
			})
		})

	srv.Tool("approval.decide").
		Description("Approve or reject a step of an approval case. Approving the last step commits the adjustment").
		Handler(func(ctx context.Context, input approvalDecideInput) (*approvalDecideResult, error) {
			if app == nil || app.Workflow == nil {
				return nil, errors.New("approval decisions require database connection")
			}
			id, err := parseUUID(input.CaseID)
			if err != nil {
				return nil, err
			}
			step := -1
			if input.Step != nil {
				step = *input.Step
			}

			c, err := app.Workflow.SubmitDecision(ctx, id, domain.Submission{
				StepIndex: step,
				Role:      domain.Role(input.Role),
				Actor:     input.Actor,
				Approve:   input.Approve,
				Comments:  input.Comments,
			})
			if c == nil {
				return nil, err
			}
			result := &approvalDecideResult{Case: queries.ToCaseDTO(c, app.Now(), true)}
			if err != nil {
				result.Error = err.Error()
			}
			return result, nil
		})

	return nil
}
