package permission

import (
	"github.com/spf13/cobra"
)

// Cmd is the permission command group
var Cmd = &cobra.Command{
	Use:   "permission",
	Short: "Check adjustment permissions",
	Long:  `Evaluate a single proposed reschedule against the permission tiers.`,
}

func init() {
	Cmd.AddCommand(checkCmd)
}
