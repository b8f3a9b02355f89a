package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/app"
	"github.com/ternarybob/canon/internal/services/cleanup"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive or delete files whose lifecycle has ended",
	Long: `Cleanup first relocates misplaced files, then applies the lifecycle rules:
files past their age threshold are archived or deleted. Deletion is limited
to temporary files. Every run writes a JSON run log.

Runs as a preview unless --apply is given. Exits 1 when files are left
unresolved and 2 when another run holds the lock.`,
	RunE: runCleanup,
}

var (
	cleanupApply        bool
	cleanupSkipAdvisory bool
	cleanupNoFix        bool
)

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupApply, "apply", false, "Archive and delete files (default is a preview)")
	cleanupCmd.Flags().BoolVar(&cleanupSkipAdvisory, "skip-advisory", false, "Do not consult the task board or memory snapshots")
	cleanupCmd.Flags().BoolVar(&cleanupNoFix, "no-fix", false, "Skip the relocation step")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), app.Options{History: true, SkipAdvisory: cleanupSkipAdvisory})
	if err != nil {
		return err
	}
	defer a.Close()

	runLog, err := a.Cleanup.Run(cmd.Context(), cleanup.Options{
		Apply:        cleanupApply,
		SkipAdvisory: cleanupSkipAdvisory,
		NoFix:        cleanupNoFix,
	})
	if err != nil {
		return err
	}

	if jsonFlag {
		if err := printJSON(runLog); err != nil {
			return err
		}
	} else {
		printCleanup(runLog)
	}

	if cleanup.Unresolved(runLog) {
		return &exitError{code: exitUnresolved}
	}
	return nil
}
