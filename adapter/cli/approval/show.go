package approval

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show an approval case with its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.GetCaseHandler == nil {
			return errors.New("application not initialized - database connection required")
		}

		caseID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid case ID: %w", err)
		}
		c, err := app.GetCaseHandler.Handle(cmd.Context(), queries.GetCaseQuery{CaseID: caseID})
		if err != nil {
			return fmt.Errorf("failed to get case: %w", err)
		}

		out := cmd.OutOrStdout()
		if cli.JSONOutput() {
			return cli.PrintJSON(out, c)
		}
		printCase(out, *c, app.Location)
		return nil
	},
}
