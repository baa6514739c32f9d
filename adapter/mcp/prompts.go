package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common coordinator workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("approval_triage").
		Description("Work through open approval cases, most urgent and overdue first.").
		Argument("role", "Approver role to triage for (supervisor, department_head, administrator)", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			role := args["role"]
			if role == "" {
				role = "any role"
			}
			return &mcp.PromptResult{
				Description: "Approval Triage",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Help me clear the approval queue for %s.

1. Read the open cases from the carevisit://approvals/open resource
2. Keep only cases whose current step is waiting for my role
3. Order them: overdue first, then urgent steps, then by impact score (highest first)

For each case summarize:
- the visit (subject, original and proposed time)
- the permission tier and impact score
- the notes recorded when the case was opened

Recommend approve or reject with a one-line reason. Only after I confirm,
submit each decision with the approval.decide tool.`, role),
						},
					},
				},
			}, nil
		})

	srv.Prompt("reschedule_day").
		Description("Move a group of visits and review the batch report before anything needs approval.").
		Argument("reason", "Why the visits are moving (e.g. traffic, staff_sick, weather)", true).
		Argument("date", "Day of the affected visits (YYYY-MM-DD)", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			reason := args["reason"]
			if reason == "" {
				reason = "[Please give a reason code]"
			}
			date := args["date"]
			if date == "" {
				date = "today"
			}
			return &mcp.PromptResult{
				Description: "Reschedule a Day",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`I need to reschedule visits for %s. Reason: %s.

1. List the booked visits with the schedule.show tool
2. Ask me which visits move and where to
3. Check one or two of the moves with permission.check to preview the tier
4. Submit all moves in one call to batch.run with strategy "smart"

Then walk me through the report:
- which items were committed, skipped, cancelled or failed
- which conflicts were found and how each was resolved
- which items are now awaiting approval and who has to approve them
- any lookup failures that mean conflicts may have been missed`, date, reason),
						},
					},
				},
			}, nil
		})

	srv.Prompt("conflict_review").
		Description("Explain the conflicts found in a finished batch.").
		Argument("batch_id", "Batch id to review", true).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			batchID := args["batch_id"]
			if batchID == "" {
				batchID = "[Please give the batch id]"
			}
			return &mcp.PromptResult{
				Description: "Conflict Review",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Review batch %s.

Use the batch.show tool with conflicts enabled. Group the conflicts by severity
(critical, high, medium, low) and for each group explain:
- which visits overlap and by how many minutes
- whether the counterpart was another item in the batch or a booked visit
- the action that was taken (moved, negotiate, skip, cancel, escalate)

Point out visits that were escalated or need a follow-up call.`, batchID),
						},
					},
				},
			}, nil
		})

	return nil
}
