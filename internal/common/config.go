// -----------------------------------------------------------------------
// Last Modified: Wednesday, 7th October 2026 4:40:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production" - production refuses every mutating command
	Project     ProjectConfig  `toml:"project"`
	Advisory    AdvisoryConfig `toml:"advisory"`
	Cache       CacheConfig    `toml:"cache"`
	Storage     StorageConfig  `toml:"storage"`
	Backup      BackupConfig   `toml:"backup"`
	Cleanup     CleanupConfig  `toml:"cleanup"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ProjectConfig locates the project tree and its rule configuration
type ProjectConfig struct {
	Root          string `toml:"root"`           // Project root (default: current directory)
	StructureFile string `toml:"structure_file"` // Rule configuration, relative to root
}

// AdvisoryConfig configures the file-based advisory client
type AdvisoryConfig struct {
	TaskBoard         string   `toml:"task_board"`           // Live task-tracking document, relative to root
	MemoryDir         string   `toml:"memory_dir"`           // Directory holding per-agent memory snapshots
	MemoryGlob        string   `toml:"memory_glob"`          // Snapshot file pattern inside memory_dir
	CriticalPatterns  []string `toml:"critical_patterns"`    // Name substrings that are never archived
	CompletionMarkers []string `toml:"completion_markers"`   // Name substrings signalling completion/report files
	MinArchiveAgeDays int      `toml:"min_archive_age_days"` // Age a completion file must exceed to be archivable
}

// CacheConfig selects the violation cache backend
type CacheConfig struct {
	Backend string `toml:"backend"` // "file" or "badger"
	Path    string `toml:"path"`    // JSON cache file for the file backend, relative to root
}

// StorageConfig holds persistent storage configuration
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path, relative to root
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// BackupConfig configures pre-move backups
type BackupConfig struct {
	Dir string `toml:"dir"` // Backup root, relative to project root; a dated directory is created per day
}

// CleanupConfig configures the cleanup orchestrator
type CleanupConfig struct {
	LockFile   string `toml:"lock_file"`   // Process-wide lock, relative to root
	LogDir     string `toml:"log_dir"`     // Run logs are written under <log_dir>/<YYYY-MM-DD>/
	StatusFile string `toml:"status_file"` // Optional shared status document a run summary is appended to
	ArchiveDir string `toml:"archive_dir"` // Default archive location when a rule names none
	Schedule   string `toml:"schedule"`    // Cron schedule for `canon schedule`
}

// LoggingConfig configures the arbor logger
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Project: ProjectConfig{
			Root:          ".",
			StructureFile: ".claude/config/canonical-structure.yaml",
		},
		Advisory: AdvisoryConfig{
			TaskBoard:         ".claude/TASK_BOARD.md",
			MemoryDir:         ".claude/memory",
			MemoryGlob:        "*-memory.json",
			CriticalPatterns:  []string{"CLAUDE.md", "README", "LICENSE", "canonical-structure", "package.json", "go.mod", ".env"},
			CompletionMarkers: []string{"COMPLETE", "REPORT", "SUMMARY", "FINAL", "DONE"},
			MinArchiveAgeDays: 7,
		},
		Cache: CacheConfig{
			Backend: "file",
			Path:    ".claude/cache/structure-validation.json",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: ".claude/data/canon",
			},
		},
		Backup: BackupConfig{
			Dir: ".claude/backups",
		},
		Cleanup: CleanupConfig{
			LockFile:   ".claude/locks/cleanup.lock",
			LogDir:     ".claude/logs/cleanup",
			ArchiveDir: "archive",
			Schedule:   "0 3 * * *", // Daily at 03:00
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> files -> env.
// CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads an optional .env file into the process environment.
// Existing variables win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies CANON_* environment variables
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CANON_ENV"); env != "" {
		config.Environment = env
	}

	if root := os.Getenv("CANON_PROJECT_ROOT"); root != "" {
		config.Project.Root = root
	}
	if structure := os.Getenv("CANON_STRUCTURE_FILE"); structure != "" {
		config.Project.StructureFile = structure
	}

	if taskBoard := os.Getenv("CANON_TASK_BOARD"); taskBoard != "" {
		config.Advisory.TaskBoard = taskBoard
	}
	if memoryDir := os.Getenv("CANON_MEMORY_DIR"); memoryDir != "" {
		config.Advisory.MemoryDir = memoryDir
	}
	if minAge := os.Getenv("CANON_MIN_ARCHIVE_AGE_DAYS"); minAge != "" {
		if days, err := strconv.Atoi(minAge); err == nil {
			config.Advisory.MinArchiveAgeDays = days
		}
	}

	if backend := os.Getenv("CANON_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = backend
	}
	if badgerPath := os.Getenv("CANON_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if schedule := os.Getenv("CANON_CLEANUP_SCHEDULE"); schedule != "" {
		config.Cleanup.Schedule = schedule
	}

	if level := os.Getenv("CANON_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CANON_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line overrides (highest priority)
func ApplyFlagOverrides(config *Config, root, structureFile, logLevel string) {
	if root != "" {
		config.Project.Root = root
	}
	if structureFile != "" {
		config.Project.StructureFile = structureFile
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks the values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "file", "badger":
	default:
		return fmt.Errorf("unsupported cache backend: %s (want file or badger)", c.Cache.Backend)
	}
	if c.Advisory.MinArchiveAgeDays < 0 {
		return fmt.Errorf("advisory.min_archive_age_days must not be negative")
	}
	if c.Cleanup.Schedule != "" {
		if err := ValidateSchedule(c.Cleanup.Schedule); err != nil {
			return fmt.Errorf("cleanup.schedule: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a cron schedule expression and ensures a minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ProjectRoot returns the absolute project root
func (c *Config) ProjectRoot() (string, error) {
	root, err := filepath.Abs(c.Project.Root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root %s: %w", c.Project.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", root)
	}
	return root, nil
}

// Resolve joins a configured project-relative path onto the root.
// Absolute paths are returned unchanged.
func (c *Config) Resolve(root, rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}
