package schedule

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var importFile string

type importDocument struct {
	Schedules []cli.VisitInput `yaml:"schedules"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import booked visits from a YAML file",
	Long: `Store booked visits so batch runs can detect conflicts against them.
Visits with an existing id are replaced.

  schedules:
    - id: s-1
      subject_name: Grace Hopper
      start: "2026-03-04 09:00"
      duration_minutes: 60
      service_type: medication
      priority: high
      resource_id: nurse-7

Examples:
  carevisit schedule import -f bookings.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Schedules == nil {
			return errors.New("application not initialized - database connection required")
		}

		data, err := security.ReadDocument(importFile, ".yaml", ".yml")
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}
		var doc importDocument
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return fmt.Errorf("decode import file: %w", err)
		}

		n, err := cli.ImportSchedules(cmd.Context(), app, doc.Schedules)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d booked visits.\n", n)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "YAML file with booked visits")
	_ = importCmd.MarkFlagRequired("file")
}
