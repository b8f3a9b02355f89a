package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/app"
	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/remediation"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Relocate misplaced files to their canonical directories",
	Long: `Fix moves every file reported by a full validation pass to its canonical
directory, backing each file up first and preferring version-control moves.

Runs as a dry run unless --apply is given. With --migration the configured
bulk migrations are applied instead of the violation report.

Exits 1 when an applied run leaves files skipped.`,
	RunE: runFix,
}

var (
	fixApply        bool
	fixDryRun       bool
	fixMigration    bool
	fixSkipAdvisory bool
)

func init() {
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", true, "Plan moves without changing files")
	fixCmd.Flags().BoolVar(&fixApply, "apply", false, "Move files (default is a dry run)")
	fixCmd.Flags().BoolVar(&fixMigration, "migration", false, "Apply the configured bulk migrations")
	fixCmd.Flags().BoolVar(&fixSkipAdvisory, "skip-advisory", false, "Do not consult the task board or memory snapshots")
}

func runFix(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, app.Options{History: true, SkipAdvisory: fixSkipAdvisory})
	if err != nil {
		return err
	}
	defer a.Close()

	// An explicit --dry-run wins over --apply
	dryRun := !fixApply || (cmd.Flags().Changed("dry-run") && fixDryRun)
	opts := remediation.Options{DryRun: dryRun, SkipAdvisory: fixSkipAdvisory}
	command := "fix"
	started := time.Now()

	var result *models.FixResult
	if fixMigration {
		command = "migrate"
		result, err = a.Remediation.FixMigration(ctx, opts)
	} else {
		result, err = a.Remediation.FixViolations(ctx, opts)
	}
	a.RecordFix(ctx, command, started, result, err)
	if err != nil {
		return err
	}

	if jsonFlag {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printFix(result)
	}

	if result.Unresolved() {
		return &exitError{code: exitUnresolved}
	}
	return nil
}
