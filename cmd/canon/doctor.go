package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/app"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the project is set up for structure enforcement",
	Long:  `Doctor checks git hooks, the rule configuration, agent definitions, memory snapshots, CLAUDE.md and helper scripts. Exits 1 when a check fails.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := app.NewDoctor(config, projectRoot, logger).Run(cmd.Context())

	if jsonFlag {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printDoctor(report)
	}

	if report.Failed() > 0 {
		return &exitError{code: exitUnresolved}
	}
	return nil
}
