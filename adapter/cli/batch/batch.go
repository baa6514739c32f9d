package batch

import (
	"github.com/spf13/cobra"
)

// Cmd is the batch command group
var Cmd = &cobra.Command{
	Use:   "batch",
	Short: "Run and inspect adjustment batches",
	Long:  `Submit a batch of proposed visit reschedules and inspect stored batch reports.`,
}

func init() {
	Cmd.AddCommand(runCmd)
	Cmd.AddCommand(showCmd)
}
