// -----------------------------------------------------------------------
// Last Modified: Friday, 16th October 2026 2:05:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/git"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/advisory"
	"github.com/ternarybob/canon/internal/services/backup"
	"github.com/ternarybob/canon/internal/services/cache"
	"github.com/ternarybob/canon/internal/services/classifier"
	"github.com/ternarybob/canon/internal/services/cleanup"
	"github.com/ternarybob/canon/internal/services/doctor"
	"github.com/ternarybob/canon/internal/services/relocate"
	"github.com/ternarybob/canon/internal/services/remediation"
	"github.com/ternarybob/canon/internal/services/rules"
	"github.com/ternarybob/canon/internal/services/scheduler"
	"github.com/ternarybob/canon/internal/services/validation"
	"github.com/ternarybob/canon/internal/storage"
)

// Options select which optional components are opened
type Options struct {
	History      bool                        // Open the Badger store for audit history
	SkipAdvisory bool                        // Replace the advisory client with the bypass client
	LookupEnv    func(string) (string, bool) // Environment lookup for the deployment guard; nil uses os.LookupEnv
}

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Root   string

	// Rule configuration
	Rules          *models.RuleSet
	RuleValidation rules.ValidationResult

	// Storage; StorageManager is nil unless history or the badger cache is in use
	StorageManager interfaces.StorageManager
	CacheStorage   interfaces.CacheStorage

	// Version control; nil outside a git work tree
	Repo *git.Repository

	// Domain services
	Classifier  *classifier.Service
	Cache       *cache.Service
	Validation  *validation.Service
	Advisory    interfaces.AdvisoryClient
	Backup      *backup.Service
	Relocator   interfaces.Relocator
	Remediation *remediation.Service
	Cleanup     *cleanup.Service
}

// New loads the rule configuration and wires every service for the project
// at root. A missing or invalid rule configuration is a *models.ConfigError.
func New(ctx context.Context, cfg *common.Config, root string, logger arbor.ILogger, opts Options) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Root:   root,
	}

	if err := app.initRules(); err != nil {
		return nil, err
	}

	repo := git.NewRepository(root)
	if git.Available() && repo.IsRepository(ctx) {
		app.Repo = repo
	} else {
		logger.Debug().Str("root", root).Msg("Not a git repository, version-control features disabled")
	}

	if err := app.initDatabase(opts); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(opts); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Debug().
		Str("root", root).
		Int("rules", len(app.Rules.FileTypes)).
		Str("enforcement_mode", string(app.Rules.Settings.EnforcementMode)).
		Str("cache_backend", cfg.Cache.Backend).
		Bool("history", app.StorageManager != nil).
		Bool("git", app.Repo != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initRules loads and validates the rule configuration
func (a *App) initRules() error {
	path := a.Config.Resolve(a.Root, a.Config.Project.StructureFile)
	rs, err := rules.Load(path)
	if err != nil {
		return err
	}

	a.RuleValidation = rules.NewValidator(a.Logger).Validate(rs)
	for _, warning := range a.RuleValidation.Warnings {
		a.Logger.Warn().Str("path", path).Msg(warning)
	}
	if !a.RuleValidation.Valid {
		return &models.ConfigError{Path: path, Err: fmt.Errorf("invalid rules: %s", strings.Join(a.RuleValidation.Issues, "; "))}
	}

	a.Rules = rs
	return nil
}

// initDatabase opens the storage backends. History is optional: a Badger
// open failure only disables it, unless the cache depends on Badger.
func (a *App) initDatabase(opts Options) error {
	needBadger := a.Config.Cache.Backend == "badger"
	if opts.History || needBadger {
		manager, err := storage.NewStorageManager(a.Logger, a.Config, a.Root)
		if err != nil {
			if needBadger {
				return err
			}
			a.Logger.Warn().Err(err).Msg("Run history unavailable")
		} else {
			a.StorageManager = manager
		}
	}

	cacheStorage, err := storage.NewCacheStorage(a.Logger, a.Config, a.Root, a.StorageManager)
	if err != nil {
		return err
	}
	a.CacheStorage = cacheStorage
	return nil
}

// advisoryPaths returns the advisory task board and memory directory relative
// to the project root. They describe work in progress and are never
// classified themselves.
func (a *App) advisoryPaths() []string {
	var paths []string
	for _, p := range []string{a.Config.Advisory.TaskBoard, a.Config.Advisory.MemoryDir} {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(a.Root, a.Config.Resolve(a.Root, p))
		if err != nil {
			continue
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	return paths
}

// initServices wires the domain services in dependency order
func (a *App) initServices(opts Options) error {
	a.Classifier = classifier.NewService(a.Rules, a.Root, a.Logger).
		IgnorePaths(a.advisoryPaths()...)
	a.Cache = cache.NewService(a.CacheStorage, a.Root, a.Rules, a.Logger)
	a.Validation = validation.NewService(a.Classifier, a.Cache, a.Repo, a.Logger)

	if opts.SkipAdvisory {
		a.Advisory = advisory.NewBypass()
	} else {
		a.Advisory = advisory.NewService(&a.Config.Advisory, a.Root, a.Logger)
	}

	a.Backup = backup.NewService(a.Config.Backup.Dir, a.Root, a.Logger)
	a.Relocator = relocate.NewService(a.Root, a.Repo, a.Logger)

	a.Remediation = remediation.NewService(remediation.Dependencies{
		Config:    a.Config,
		Rules:     a.Rules,
		Root:      a.Root,
		Validator: a.Validation,
		Advisory:  a.Advisory,
		Relocator: a.Relocator,
		Backup:    a.Backup,
		Repo:      a.Repo,
		LookupEnv: opts.LookupEnv,
		Logger:    a.Logger,
	})

	deps := cleanup.Dependencies{
		Config:      a.Config,
		Rules:       a.Rules,
		Root:        a.Root,
		Classifier:  a.Classifier,
		Remediation: a.Remediation,
		Advisory:    a.Advisory,
		Relocator:   a.Relocator,
		LookupEnv:   opts.LookupEnv,
		Logger:      a.Logger,
	}
	if a.StorageManager != nil {
		deps.Audit = a.StorageManager.AuditStorage()
	}
	a.Cleanup = cleanup.NewService(deps)
	return nil
}

// NewScheduler returns a scheduler with the cleanup job registered on the
// configured schedule
func (a *App) NewScheduler(opts cleanup.Options) (*scheduler.Service, error) {
	s := scheduler.NewService(a.Logger)
	err := s.RegisterJob("cleanup", a.Config.Cleanup.Schedule, func(ctx context.Context) error {
		runLog, err := a.Cleanup.Run(ctx, opts)
		if err != nil {
			return err
		}
		if cleanup.Unresolved(runLog) {
			a.Logger.Warn().Str("run_id", runLog.RunID).Msg("Scheduled cleanup left unresolved files")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RecordFix stores a remediation run in the audit history when enabled
func (a *App) RecordFix(ctx context.Context, command string, started time.Time, result *models.FixResult, runErr error) {
	if a.StorageManager == nil {
		return
	}
	entry := &models.AuditEntry{
		ID:        common.NewRunID(),
		Command:   command,
		Mode:      models.CleanupApply,
		StartedAt: started,
		Duration:  time.Since(started).Milliseconds(),
	}
	if result != nil {
		if result.DryRun {
			entry.Mode = models.CleanupPreview
		}
		entry.Fixed = result.Fixed
		entry.Skipped = result.Skipped
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := a.StorageManager.AuditStorage().SaveEntry(ctx, entry); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to record audit entry")
	}
}

// NewDoctor returns the setup checker. It does not need a loadable rule
// configuration, so it is built without an App.
func NewDoctor(cfg *common.Config, root string, logger arbor.ILogger) *doctor.Service {
	var repo *git.Repository
	if git.Available() {
		repo = git.NewRepository(root)
	}
	return doctor.NewService(cfg, root, repo, rules.NewValidator(logger), logger)
}

// OpenHistory opens the audit store on its own for read-only commands
func OpenHistory(cfg *common.Config, root string, logger arbor.ILogger) (interfaces.StorageManager, error) {
	return storage.NewStorageManager(logger, cfg, root)
}

// Close releases storage
func (a *App) Close() error {
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
		a.StorageManager = nil
	}
	return nil
}
