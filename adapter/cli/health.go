package cli

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity of the database, cache, broker and schedule source",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}
		out := cmd.OutOrStdout()
		if app.Health == nil {
			fmt.Fprintln(out, "ok")
			return nil
		}

		overall := app.Health.GetOverallHealth(cmd.Context())
		names := make([]string, 0, len(overall.Checks))
		for name := range overall.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(out, "status: %s\n", overall.Status)
		for _, name := range names {
			result := overall.Checks[name]
			line := fmt.Sprintf("  %-16s %s", name, result.Status)
			if result.Message != "" {
				line += " (" + result.Message + ")"
			}
			fmt.Fprintln(out, line)
		}
		if overall.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
