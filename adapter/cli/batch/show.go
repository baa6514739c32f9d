package batch

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/application/queries"
	"github.com/spf13/cobra"
)

var showConflicts bool

var showCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a stored batch report",
	Long: `Display the report of a finished batch run.

Examples:
  carevisit batch show 5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80
  carevisit batch show 5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80 --conflicts --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.GetBatchReportHandler == nil {
			return errors.New("application not initialized - database connection required")
		}

		view, err := app.GetBatchReportHandler.Handle(cmd.Context(), queries.GetBatchReportQuery{
			BatchID:       args[0],
			WithConflicts: showConflicts,
		})
		if err != nil {
			return fmt.Errorf("failed to get batch report: %w", err)
		}

		out := cmd.OutOrStdout()
		if cli.JSONOutput() {
			return cli.PrintJSON(out, view)
		}
		printReport(out, view.Report, app.Location)
		if showConflicts {
			printRecords(out, view.Records)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showConflicts, "conflicts", false, "include the stored conflict records")
}
