package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/spf13/cobra"
)

var showDate string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show booked visits for a day",
	Long: `Display booked visits for today or a specific date.

Examples:
  carevisit schedule show
  carevisit schedule show --date 2026-03-04`,
	Aliases: []string{"today", "view"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Schedules == nil {
			return errors.New("application not initialized - database connection required")
		}

		day := app.Now().In(app.Location)
		if showDate != "" {
			var err error
			day, err = time.ParseInLocation("2006-01-02", showDate, app.Location)
			if err != nil {
				return fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
			}
		}
		window := cli.DayWindow(day, app.Location)
		start := window.Start

		schedules, err := app.Schedules.FindSchedulesNear(cmd.Context(), window, 0)
		if err != nil {
			return fmt.Errorf("failed to load schedules: %w", err)
		}

		out := cmd.OutOrStdout()
		if cli.JSONOutput() {
			if schedules == nil {
				schedules = []domain.ExistingSchedule{}
			}
			return cli.PrintJSON(out, schedules)
		}

		fmt.Fprintf(out, "Booked visits for %s\n", start.Format("Monday, January 2, 2006"))
		fmt.Fprintln(out, strings.Repeat("=", 60))
		if len(schedules) == 0 {
			fmt.Fprintln(out, "\n  No booked visits.")
			return nil
		}
		for _, s := range schedules {
			from := s.Window.Start.In(app.Location)
			fmt.Fprintf(out, "  %s - %s  %s (%s, %s)",
				from.Format("15:04"), from.Add(s.Window.Duration()).Format("15:04"), s.SubjectName, s.ServiceType, s.Priority)
			if s.ResourceID != "" {
				fmt.Fprintf(out, " with %s", s.ResourceID)
			}
			fmt.Fprintf(out, " [%s]\n", s.ID)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().StringVarP(&showDate, "date", "d", "", "date to show (YYYY-MM-DD)")
}
