package permission

import (
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/spf13/cobra"
)

var checkInput cli.RequestInput

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one proposed reschedule",
	Long: `Determine the permission tier for a reschedule, run every check of that
tier and report the impact score and whether approval is required.
Nothing is committed and no usage is counted.

Examples:
  carevisit permission check --item v-1 --requester rec-1 --role recorder \
    --original "2026-03-04 10:00" --proposed "2026-03-04 14:00" --duration 60
  carevisit permission check --item v-2 --requester rec-1 --role recorder \
    --original "2026-03-04 10:00" --proposed "2026-03-05 10:00" --emergency --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Evaluator == nil {
			return errors.New("application not initialized - database connection required")
		}

		input := checkInput
		input.Proposed.DurationMinutes = input.Original.DurationMinutes
		req, err := input.ToRequest(app.Location)
		if err != nil {
			return err
		}
		if err := req.Validate(); err != nil {
			return err
		}

		result, err := app.Evaluator.Evaluate(cmd.Context(), req, app.Now())
		if err != nil {
			return fmt.Errorf("failed to evaluate request: %w", err)
		}

		out := cmd.OutOrStdout()
		if cli.JSONOutput() {
			return cli.PrintJSON(out, result)
		}
		printResult(out, result)
		return nil
	},
}

func printResult(out io.Writer, result domain.ValidationResult) {
	verdict := "allowed"
	switch {
	case !result.Valid:
		verdict = "denied"
	case result.RequiredApproval:
		verdict = "allowed after approval"
	}
	fmt.Fprintf(out, "Tier:   %s\n", result.ResolvedTier)
	fmt.Fprintf(out, "Impact: %.2f\n", result.ImpactScore)
	fmt.Fprintf(out, "Result: %s\n", verdict)
	for _, v := range result.Errors {
		fmt.Fprintf(out, "  error   %s: %s\n", v.Check, v.Message)
	}
	for _, v := range result.Warnings {
		fmt.Fprintf(out, "  warning %s: %s\n", v.Check, v.Message)
	}
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&checkInput.ID, "item", "", "item id")
	f.StringVar(&checkInput.SubjectName, "subject", "", "patient name")
	f.StringVar(&checkInput.Original.Start, "original", "", "original start (YYYY-MM-DD HH:MM or RFC 3339)")
	f.StringVar(&checkInput.Proposed.Start, "proposed", "", "proposed start (YYYY-MM-DD HH:MM or RFC 3339)")
	f.IntVar(&checkInput.Original.DurationMinutes, "duration", 60, "visit length in minutes")
	f.StringVar(&checkInput.Priority, "priority", "", "visit priority (low, medium, high, urgent)")
	f.StringVar(&checkInput.ServiceType, "service-type", "", "service type")
	f.StringVar(&checkInput.PatientType, "patient-type", "", "patient type")
	f.BoolVar(&checkInput.IsEmergency, "emergency", false, "emergency reschedule")
	f.StringVar(&checkInput.Requester.ID, "requester", "", "requester id")
	f.StringVar(&checkInput.Requester.Role, "role", "", "requester role")
	f.StringVar(&checkInput.ReasonCode, "reason", "", "reason code")
	f.StringVar(&checkInput.Weather, "weather", "", "weather condition")
	_ = checkCmd.MarkFlagRequired("item")
	_ = checkCmd.MarkFlagRequired("original")
	_ = checkCmd.MarkFlagRequired("proposed")
	_ = checkCmd.MarkFlagRequired("requester")
}
