// -----------------------------------------------------------------------
// Last Modified: Friday, 16th October 2026 2:40:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/app"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/models"
)

// Exit codes
const (
	exitOK         = 0 // Nothing blocking, nothing unresolved
	exitUnresolved = 1 // Blocking violations or files left unresolved
	exitFatal      = 2 // Configuration, environment, lock or runtime failure
)

// exitError carries a non-zero exit code without an error message
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var (
	// Persistent flags
	configFiles   []string
	rootFlag      string
	structureFlag string
	logLevelFlag  string
	quietFlag     bool
	jsonFlag      bool

	// Global state, set by bootstrap
	config      *common.Config
	logger      arbor.ILogger
	projectRoot string
)

var rootCmd = &cobra.Command{
	Use:           "canon",
	Short:         "Keep a project tree in its canonical layout",
	Long:          `canon validates file placement against a declarative rule set, relocates misplaced files safely and archives or removes files whose lifecycle has ended.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap()
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Project root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&structureFlag, "structure", "", "Rule configuration file, relative to the project root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON instead of text")

	rootCmd.AddCommand(validateCmd, fixCmd, cleanupCmd, scheduleCmd, historyCmd, doctorCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	os.Exit(exitCode(err))
}

// bootstrap loads configuration and initializes the logger.
// Startup order: .env -> config files -> env -> CLI flags -> logger.
func bootstrap() error {
	if err := common.LoadDotEnv(".env"); err != nil {
		common.NewStartupLogger().Warn().Err(err).Msg("Ignoring .env file")
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("canon.toml"); err == nil {
			configFiles = append(configFiles, "canon.toml")
		} else if _, err := os.Stat(".claude/config/canon.toml"); err == nil {
			configFiles = append(configFiles, ".claude/config/canon.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return &models.ConfigError{Path: fmt.Sprintf("%v", configFiles), Err: err}
	}
	common.ApplyFlagOverrides(config, rootFlag, structureFlag, logLevelFlag)

	projectRoot, err = config.ProjectRoot()
	if err != nil {
		return &models.ConfigError{Path: config.Project.Root, Err: err}
	}

	logger = common.InitLogger(config, projectRoot, quietFlag || jsonFlag)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("root", projectRoot).
		Str("structure_file", config.Project.StructureFile).
		Str("cache_backend", config.Cache.Backend).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
	return nil
}

// newApp wires the application for commands that need the rule set
func newApp(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.New(ctx, config, projectRoot, logger, opts)
}

// exitCode maps a command error to the process exit code
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	log := logger
	if log == nil {
		log = common.NewStartupLogger()
	}
	log.Error().Err(err).Bool("fatal", models.IsFatal(err)).Msg("Command failed")

	return exitFatal
}
