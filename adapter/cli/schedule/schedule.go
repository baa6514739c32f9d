package schedule

import (
	"github.com/spf13/cobra"
)

// Cmd is the schedule command group
var Cmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage booked visits",
	Long:  `Import booked visits and list what is booked on a given day.`,
}

func init() {
	Cmd.AddCommand(importCmd)
	Cmd.AddCommand(showCmd)
}
