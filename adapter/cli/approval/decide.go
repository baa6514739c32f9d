package approval

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	decideApprove  bool
	decideReject   bool
	decideRole     string
	decideActor    string
	decideStep     int
	decideComments string
)

var decideCmd = &cobra.Command{
	Use:   "decide <case-id>",
	Short: "Approve or reject the current step of a case",
	Long: `Record an approver decision. The role must match the step being decided.
When the last step is approved the adjustment is committed.

Examples:
  carevisit approval decide <case-id> --approve --role supervisor --actor sup-1
  carevisit approval decide <case-id> --reject --role department_head --actor head-2 -m "too close to lunch"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Workflow == nil {
			return errors.New("application not initialized - database connection required")
		}
		if decideApprove == decideReject {
			return errors.New("exactly one of --approve or --reject is required")
		}

		caseID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid case ID: %w", err)
		}

		c, err := app.Workflow.SubmitDecision(cmd.Context(), caseID, domain.Submission{
			StepIndex: decideStep,
			Role:      domain.Role(decideRole),
			Actor:     decideActor,
			Approve:   decideApprove,
			Comments:  decideComments,
		})
		if c == nil {
			return fmt.Errorf("failed to submit decision: %w", err)
		}

		out := cmd.OutOrStdout()
		dto := queries.ToCaseDTO(c, app.Now(), false)
		if cli.JSONOutput() {
			if printErr := cli.PrintJSON(out, dto); printErr != nil {
				return printErr
			}
		} else {
			fmt.Fprintf(out, "Decision recorded. Case %s is %s.\n", dto.ID, dto.Status)
		}
		if err != nil {
			return fmt.Errorf("decision recorded but follow-up failed: %w", err)
		}
		return nil
	},
}

func init() {
	decideCmd.Flags().BoolVar(&decideApprove, "approve", false, "approve the step")
	decideCmd.Flags().BoolVar(&decideReject, "reject", false, "reject the step")
	decideCmd.Flags().StringVar(&decideRole, "role", "", "approver role")
	decideCmd.Flags().StringVar(&decideActor, "actor", "", "approver id")
	decideCmd.Flags().IntVar(&decideStep, "step", -1, "step index (default: the current step)")
	decideCmd.Flags().StringVarP(&decideComments, "comments", "m", "", "comments")
	_ = decideCmd.MarkFlagRequired("role")
	_ = decideCmd.MarkFlagRequired("actor")
}
