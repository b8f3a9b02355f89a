package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/doctor"
	"github.com/ternarybob/canon/internal/services/validation"
)

var stdout io.Writer = os.Stdout

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(report *validation.Report) {
	if len(report.Violations) == 0 {
		fmt.Fprintf(stdout, "Structure OK: %d files checked (%s)\n", report.Checked, report.Mode)
		return
	}

	violations := append([]models.Violation(nil), report.Violations...)
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Severity != violations[j].Severity {
			return violations[i].Severity == models.SeverityError
		}
		return violations[i].FilePath < violations[j].FilePath
	})

	for _, v := range violations {
		fmt.Fprintf(stdout, "%-7s %s\n", strings.ToUpper(string(v.Severity)), v.Message)
		if v.FixCommand != "" {
			fmt.Fprintf(stdout, "        fix: %s\n", v.FixCommand)
		}
	}
	fmt.Fprintf(stdout, "\n%d files checked, %d errors, %d warnings (%s, cache %d hits / %d misses)\n",
		report.Checked, report.Errors, report.Warnings, report.EnforcementMode, report.Cache.Hits, report.Cache.Misses)
	if report.HasBlocking() {
		fmt.Fprintln(stdout, "Run `canon fix --apply` to relocate misplaced files.")
	}
}

func printFix(result *models.FixResult) {
	verb := "Moved"
	if result.DryRun {
		verb = "Would move"
	}
	for _, o := range result.Outcomes {
		switch o.State {
		case models.FileStateMoved, models.FileStatePlanned:
			fmt.Fprintf(stdout, "%s %s -> %s\n", verb, o.Path, o.Destination)
		case models.FileStateSkipped:
			fmt.Fprintf(stdout, "Skipped %s: %s\n", o.Path, o.Reason)
		case models.FileStateFailed:
			fmt.Fprintf(stdout, "Failed %s: %s\n", o.Path, o.Reason)
		}
	}
	if result.DryRun {
		fmt.Fprintf(stdout, "\nDry run: %d planned, %d skipped. Re-run with --apply to move files.\n", result.Fixed, result.Skipped)
		return
	}
	fmt.Fprintf(stdout, "\n%d fixed, %d skipped\n", result.Fixed, result.Skipped)
	if result.Commit != "" {
		fmt.Fprintf(stdout, "Committed %s\n", result.Commit)
	}
}

func printCleanup(runLog *models.CleanupLog) {
	for _, a := range runLog.Actions {
		line := fmt.Sprintf("%-13s %s", a.Action, a.File)
		if a.Destination != "" {
			line += " -> " + a.Destination
		}
		if a.Reason != "" {
			line += " (" + a.Reason + ")"
		}
		fmt.Fprintln(stdout, line)
	}

	fmt.Fprintf(stdout, "\nCleanup %s [%s]: ", runLog.RunID, runLog.Mode)
	if runLog.Mode == models.CleanupPreview {
		fmt.Fprintf(stdout, "%d would archive, %d would delete, %d kept\n",
			runLog.Count(models.CleanupWouldArchive), runLog.Count(models.CleanupWouldDelete), runLog.Count(models.CleanupKept))
	} else {
		fmt.Fprintf(stdout, "%d archived, %d deleted, %d kept, %d failed\n",
			runLog.Count(models.CleanupArchived), runLog.Count(models.CleanupDeleted), runLog.Count(models.CleanupKept), runLog.Count(models.CleanupFailed))
	}
	if runLog.LogFile != "" {
		fmt.Fprintf(stdout, "Run log: %s\n", runLog.LogFile)
	}
}

func printDoctor(report *doctor.Report) {
	for _, c := range report.Checks {
		fmt.Fprintf(stdout, "[%s] %s", strings.ToUpper(string(c.Status)), c.Name)
		if c.Detail != "" {
			fmt.Fprintf(stdout, ": %s", c.Detail)
		}
		fmt.Fprintln(stdout)
	}
}

func printHistory(entries []*models.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No recorded runs")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-7s fixed=%d skipped=%d archived=%d deleted=%d %dms",
			e.StartedAt.Format("2006-01-02 15:04:05"), e.Command, e.Mode, e.Fixed, e.Skipped, e.Archived, e.Deleted, e.Duration)
		if e.Error != "" {
			line += "  error: " + e.Error
		}
		fmt.Fprintln(stdout, line)
	}
}
