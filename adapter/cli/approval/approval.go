package approval

import (
	"github.com/spf13/cobra"
)

// Cmd is the approval command group
var Cmd = &cobra.Command{
	Use:   "approval",
	Short: "Review and decide approval cases",
	Long:  `List open approval cases, inspect their steps and record approver decisions.`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(decideCmd)
}
