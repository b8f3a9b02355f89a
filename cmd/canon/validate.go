package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/canon/internal/app"
	"github.com/ternarybob/canon/internal/services/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check file placement against the rule configuration",
	Long: `Validate classifies files against the canonical structure rules.

Modes:
  pre-commit  files staged in the git index (for use in a pre-commit hook)
  full        the whole project tree, forbidden patterns and required directories
  files       the files given as arguments

Exits 1 when an error-severity violation is found.`,
	RunE: runValidate,
}

var validateMode string

func init() {
	validateCmd.Flags().StringVarP(&validateMode, "mode", "m", "", "Validation mode: pre-commit, full, files (default: files when arguments are given, otherwise full)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	modeValue := validateMode
	if modeValue == "" && len(args) > 0 {
		modeValue = string(validation.ModeFiles)
	}
	mode, err := validation.ParseMode(modeValue)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Validation.Validate(cmd.Context(), mode, args)
	if err != nil {
		return err
	}

	if jsonFlag {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if report.HasBlocking() {
		return &exitError{code: exitUnresolved}
	}
	return nil
}
