package approval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	"github.com/spf13/cobra"
)

var (
	listStatus string
	listBatch  string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval cases",
	Long: `List approval cases, newest first.

Examples:
  carevisit approval list
  carevisit approval list --status in_progress
  carevisit approval list --batch 5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80`,
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ListCasesHandler == nil {
			return errors.New("application not initialized - database connection required")
		}

		cases, err := app.ListCasesHandler.Handle(cmd.Context(), queries.ListCasesQuery{
			Status:  strings.ToLower(listStatus),
			BatchID: listBatch,
			Limit:   listLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list cases: %w", err)
		}

		out := cmd.OutOrStdout()
		if cli.JSONOutput() {
			return cli.PrintJSON(out, cases)
		}
		if len(cases) == 0 {
			fmt.Fprintln(out, "No approval cases found.")
			return nil
		}
		for _, c := range cases {
			waiting := "-"
			if !terminal(c.Status) && c.CurrentStep < len(c.Steps) {
				waiting = c.Steps[c.CurrentStep].Role
			}
			fmt.Fprintf(out, "%s  %-11s %-9s %6.2f  %-16s %s %s\n",
				c.ID, c.Status, c.Tier, c.ImpactScore, waiting, c.ItemID, c.Subject)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending, in_progress, approved, rejected)")
	listCmd.Flags().StringVar(&listBatch, "batch", "", "filter by batch id")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of cases")
}
