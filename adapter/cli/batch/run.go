package batch

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/application/services"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var (
	runFile      string
	runStrategy  string
	runBatchID   string
	runRequester string
	runRole      string
	runProgress  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a batch file",
	Long: `Detect conflicts, resolve them and commit or route every item of a batch.

The batch file is YAML or JSON:

  strategy: smart
  requester: {id: rec-1, role: recorder}
  reason_code: traffic
  items:
    - id: v-1
      subject_name: Grace Hopper
      original: {start: "2026-03-04 10:00", duration_minutes: 60}
      proposed: {start: "2026-03-04 14:00", duration_minutes: 60}
      priority: high
      service_type: nursing

Flags override the values in the file.

Examples:
  carevisit batch run -f monday.yaml
  carevisit batch run -f monday.yaml --strategy auto --progress
  carevisit batch run -f monday.yaml --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Orchestrator == nil {
			return errors.New("application not initialized - database connection required")
		}

		data, err := security.ReadDocument(runFile)
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}
		input, err := cli.DecodeBatch(bytes.NewReader(data))
		if err != nil {
			return err
		}
		applyOverrides(&input)

		command, err := input.ToCommand(app.Location)
		if err != nil {
			return err
		}
		if runProgress {
			errOut := cmd.ErrOrStderr()
			command.Progress = func(p services.Progress) {
				fmt.Fprintf(errOut, "  %s %d/%d\n", p.Phase, p.Done, p.Total)
			}
		}

		report, err := app.Orchestrator.Run(cmd.Context(), command)
		if report == nil {
			return fmt.Errorf("failed to run batch: %w", err)
		}

		out := cmd.OutOrStdout()
		if cli.JSONOutput() {
			if printErr := cli.PrintJSON(out, report); printErr != nil {
				return printErr
			}
		} else {
			printReport(out, report, app.Location)
		}
		if err != nil {
			return fmt.Errorf("batch %s finished with errors: %w", report.BatchID, err)
		}
		return nil
	},
}

func applyOverrides(input *cli.BatchInput) {
	if runStrategy != "" {
		input.Strategy = runStrategy
	}
	if runBatchID != "" {
		input.BatchID = runBatchID
	}
	if runRequester != "" {
		input.Requester.ID = runRequester
	}
	if runRole != "" {
		input.Requester.Role = runRole
	}
	if input.Requester.ID == "" {
		input.Requester.ID = os.Getenv("USER")
	}
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "batch file (YAML or JSON)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "resolution strategy (auto, manual, skip, smart)")
	runCmd.Flags().StringVar(&runBatchID, "batch-id", "", "batch id (default: random UUID)")
	runCmd.Flags().StringVar(&runRequester, "requester", "", "requester id")
	runCmd.Flags().StringVar(&runRole, "role", "", "requester role")
	runCmd.Flags().BoolVar(&runProgress, "progress", false, "print classification progress to stderr")
	_ = runCmd.MarkFlagRequired("file")
}
