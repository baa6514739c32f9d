package approval

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
)

func printCase(out io.Writer, c queries.CaseDTO, loc *time.Location) {
	fmt.Fprintf(out, "Case %s [%s]\n", c.ID, c.Status)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Item:    %s %s\n", c.ItemID, c.Subject)
	if c.BatchID != "" {
		fmt.Fprintf(out, "Batch:   %s\n", c.BatchID)
	}
	fmt.Fprintf(out, "Tier:    %s (impact %.2f)\n", c.Tier, c.ImpactScore)
	fmt.Fprintf(out, "Created: %s\n", c.CreatedAt.In(loc).Format("2006-01-02 15:04"))

	fmt.Fprintln(out, "\nSteps")
	for _, s := range c.Steps {
		marker := " "
		if s.Index == c.CurrentStep && !terminal(c.Status) {
			marker = ">"
		}
		line := fmt.Sprintf(" %s %d. %-16s %s", marker, s.Index, s.Role, s.Status)
		if s.Urgent {
			line += " urgent"
		}
		if s.DecidedBy != "" {
			line += " by " + s.DecidedBy
		}
		if s.Deadline != nil && s.DecidedBy == "" {
			line += " due " + s.Deadline.In(loc).Format("2006-01-02 15:04")
		}
		if s.Overdue {
			line += " OVERDUE"
		}
		fmt.Fprintln(out, line)
		if s.Comments != "" {
			fmt.Fprintf(out, "       %q\n", s.Comments)
		}
	}

	if len(c.History) > 0 {
		fmt.Fprintln(out, "\nHistory")
		for _, h := range c.History {
			actor := h.Actor
			if actor == "" {
				actor = "-"
			}
			fmt.Fprintf(out, "  %s  step %d  %-13s %s\n", h.At.In(loc).Format("2006-01-02 15:04"), h.StepIndex, h.Action, actor)
		}
	}
}

func terminal(status string) bool {
	return status == "approved" || status == "rejected"
}
