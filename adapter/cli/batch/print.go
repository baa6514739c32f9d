package batch

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

func formatWindow(w domain.TimeWindow, loc *time.Location) string {
	if w.Start.IsZero() {
		return "-"
	}
	start := w.Start.In(loc)
	return fmt.Sprintf("%s-%s", start.Format("Mon 02 Jan 15:04"), start.Add(w.Duration()).Format("15:04"))
}

func printReport(out io.Writer, report *domain.BatchReport, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	fmt.Fprintf(out, "Batch %s (%s)\n", report.BatchID, report.Strategy)
	fmt.Fprintln(out, strings.Repeat("=", 72))

	s := report.Summary
	fmt.Fprintf(out, "Items: %d | Conflicts: %d | Committed: %d | Awaiting approval: %d | Denied: %d | Failed: %d | Other: %d\n",
		s.Items, s.Conflicts, s.Committed, s.AwaitingApproval, s.Denied, s.Failed, s.Other)

	if len(report.Conflicts) > 0 {
		fmt.Fprintln(out, "\nConflicts")
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  ITEM\tWITH\tKIND\tOVERLAP\tSEVERITY")
		for _, c := range report.Conflicts {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%dm %s\t%s (%.0f)\n",
				c.Subject.ID, c.CounterpartID(), c.Kind, c.OverlapMinutes, c.OverlapKind, c.Severity, c.SeverityScore)
		}
		tw.Flush()
	}

	if len(report.Decisions) > 0 {
		fmt.Fprintln(out, "\nDecisions")
		for _, d := range report.Decisions {
			target := ""
			if d.TargetWindow != nil {
				target = " -> " + formatWindow(*d.TargetWindow, loc)
			}
			fmt.Fprintf(out, "  %s: %s%s (confidence %.2f) %s\n", d.ItemID, d.Action, target, d.Confidence, d.Rationale)
		}
	}

	fmt.Fprintln(out, "\nItems")
	for _, item := range report.Items {
		fmt.Fprintf(out, "  [%s] %s %s\n", item.Status, item.ItemID, item.SubjectName)
		fmt.Fprintf(out, "      %s => %s", formatWindow(item.OriginalWindow, loc), formatWindow(item.FinalWindow, loc))
		if item.Tier != "" {
			fmt.Fprintf(out, " | tier %s, impact %.1f", item.Tier, item.ImpactScore)
		}
		fmt.Fprintln(out)
		if item.ApprovalCaseID != nil {
			fmt.Fprintf(out, "      approval case: %s\n", item.ApprovalCaseID)
		}
		for _, w := range item.Warnings {
			fmt.Fprintf(out, "      warning: %s\n", w)
		}
		for _, e := range item.Errors {
			fmt.Fprintf(out, "      error: %s\n", e)
		}
	}

	if len(report.LookupFailures) > 0 {
		fmt.Fprintf(out, "\nBooked visits could not be checked for: %s\n", strings.Join(report.LookupFailures, ", "))
	}
}

func printRecords(out io.Writer, records []domain.ConflictRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "\nNo stored conflict records.")
		return
	}
	fmt.Fprintln(out, "\nStored conflict records")
	for _, r := range records {
		fmt.Fprintf(out, "  %s %s/%s %s at %s\n",
			r.Conflict.ID, r.Conflict.Subject.ID, r.Conflict.CounterpartID(), r.Decision.Action,
			r.RecordedAt.Format(time.RFC3339))
	}
}
