package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/app"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded fix and cleanup runs",
	RunE:  runHistory,
}

var (
	historyCommand string
	historyLimit   int
)

func init() {
	historyCmd.Flags().StringVar(&historyCommand, "command", "", "Only show runs of one command: fix, migrate, cleanup")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	manager, err := app.OpenHistory(config, projectRoot, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	entries, err := manager.AuditStorage().ListEntries(cmd.Context(), historyCommand, historyLimit)
	if err != nil {
		return err
	}

	if jsonFlag {
		return printJSON(entries)
	}
	printHistory(entries)
	return nil
}
