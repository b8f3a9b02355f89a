// -----------------------------------------------------------------------
// Last Modified: Friday, 16th October 2026 10:20:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

// Package cleanup runs the lifecycle layer on top of remediation: misplaced
// files are fixed first, then files whose lifecycle trigger fires are
// archived or, if they are temporary files, deleted.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/classifier"
	"github.com/ternarybob/canon/internal/services/remediation"
)

// temporaryPatterns is the only set of names cleanup will ever delete,
// whatever the rule configuration says
var temporaryPatterns = []string{
	"*.tmp",
	"*.temp",
	"*.bak",
	"*.swp",
	"*.swo",
	"*~",
	"*.pyc",
	".DS_Store",
	"Thumbs.db",
}

// IsTemporary reports whether a base name is on the delete allow-list
func IsTemporary(name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return false
	}
	for _, pattern := range temporaryPatterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Options control one cleanup run
type Options struct {
	Apply        bool // Mutate the tree; preview otherwise
	SkipAdvisory bool // Do not consult the advisory client
	NoFix        bool // Skip the remediation step
}

// Dependencies are the collaborators of the orchestrator
type Dependencies struct {
	Config      *common.Config
	Rules       *models.RuleSet
	Root        string
	Classifier  *classifier.Service
	Remediation *remediation.Service
	Advisory    interfaces.AdvisoryClient
	Relocator   interfaces.Relocator
	Audit       interfaces.AuditStorage // Optional run history
	LookupEnv   func(string) (string, bool)
	Logger      arbor.ILogger
}

// Service is the cleanup orchestrator
type Service struct {
	config      *common.Config
	rules       *models.RuleSet
	root        string
	classifier  *classifier.Service
	remediation *remediation.Service
	advisory    interfaces.AdvisoryClient
	relocator   interfaces.Relocator
	audit       interfaces.AuditStorage
	lookupEnv   func(string) (string, bool)
	now         func() time.Time
	logger      arbor.ILogger
}

// NewService creates the cleanup orchestrator
func NewService(deps Dependencies) *Service {
	return &Service{
		config:      deps.Config,
		rules:       deps.Rules,
		root:        deps.Root,
		classifier:  deps.Classifier,
		remediation: deps.Remediation,
		advisory:    deps.Advisory,
		relocator:   deps.Relocator,
		audit:       deps.Audit,
		lookupEnv:   deps.LookupEnv,
		now:         time.Now,
		logger:      deps.Logger,
	}
}

// WithClock replaces the time source used for triggers, lock age and log names
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// candidate is a file whose lifecycle trigger fired
type candidate struct {
	path string
	rule *models.Rule
}

// Run executes one cleanup pass. Environment and lock problems are fatal and
// happen before any mutation; per-file problems are recorded in the log.
func (s *Service) Run(ctx context.Context, opts Options) (*models.CleanupLog, error) {
	start := s.now()
	mode := models.CleanupPreview
	if opts.Apply {
		mode = models.CleanupApply
	}

	if err := common.CheckEnvironment(s.config, s.lookupEnv); err != nil {
		s.logger.Error().Err(err).Msg("Cleanup refused")
		return nil, err
	}

	lock := &runLock{path: s.config.Resolve(s.root, s.config.Cleanup.LockFile), now: s.now, logger: s.logger}
	if err := lock.check(opts.Apply); err != nil {
		return nil, err
	}
	if opts.Apply {
		if err := lock.acquire(); err != nil {
			return nil, err
		}
		defer lock.release()
	}

	runLog := &models.CleanupLog{
		RunID:     common.NewRunID(),
		Timestamp: start,
		Mode:      mode,
		Actions:   []models.CleanupAction{},
	}

	s.logger.Info().
		Str("run_id", runLog.RunID).
		Str("mode", string(mode)).
		Msg("Cleanup started")

	runErr := s.execute(ctx, runLog, opts)

	runLog.DurationMs = s.now().Sub(start).Milliseconds()
	if err := s.writeLog(runLog); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write cleanup run log")
	}
	s.recordAudit(ctx, runLog, runErr)

	if runErr != nil {
		return runLog, runErr
	}

	s.logger.Info().
		Str("run_id", runLog.RunID).
		Int("archived", runLog.Count(models.CleanupArchived)+runLog.Count(models.CleanupWouldArchive)).
		Int("deleted", runLog.Count(models.CleanupDeleted)+runLog.Count(models.CleanupWouldDelete)).
		Int("skipped", runLog.Count(models.CleanupSkipped)+runLog.Count(models.CleanupRefused)).
		Int64("duration_ms", runLog.DurationMs).
		Msg("Cleanup complete")

	return runLog, nil
}

// execute runs remediation and the lifecycle pass
func (s *Service) execute(ctx context.Context, runLog *models.CleanupLog, opts Options) error {
	if !opts.NoFix && s.remediation != nil {
		fix, err := s.remediation.FixViolations(ctx, remediation.Options{DryRun: !opts.Apply, SkipAdvisory: opts.SkipAdvisory})
		if err != nil {
			return fmt.Errorf("remediation failed: %w", err)
		}
		runLog.Fix = fix
		for _, outcome := range fix.Outcomes {
			runLog.Actions = append(runLog.Actions, s.fixAction(outcome))
		}
	}

	candidates, err := s.collect(ctx)
	if err != nil {
		return err
	}

	var touched []string
	changed := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		action := s.process(ctx, c, opts)
		runLog.Actions = append(runLog.Actions, action)
		switch action.Action {
		case models.CleanupArchived:
			touched = append(touched, action.File, action.Destination)
			changed++
		case models.CleanupDeleted:
			touched = append(touched, action.File)
			changed++
		}
	}

	if opts.Apply && len(touched) > 0 {
		if status := s.appendStatus(runLog); status != "" {
			touched = append(touched, status)
		}
		if s.remediation != nil {
			s.remediation.Commit(ctx, "cleanup", changed, touched)
		}
	}
	return nil
}

// collect walks the tree and returns files whose lifecycle trigger fires.
// The tree is not mutated while walking.
func (s *Service) collect(ctx context.Context) ([]candidate, error) {
	now := s.now()
	var candidates []candidate
	err := s.classifier.Walk(ctx, func(rel string, info os.FileInfo) error {
		rule, ok := s.classifier.Match(rel)
		if !ok || rule.Lifecycle.Trigger.Kind == "" || rule.Lifecycle.Trigger.Kind == models.TriggerNever {
			return nil
		}
		if !rule.Lifecycle.Trigger.Fires(now, info.ModTime()) {
			return nil
		}
		if rule.Lifecycle.Action == models.ActionArchive && models.IsUnder(path.Dir(rel), s.archiveDir(rule)) {
			return nil
		}
		if rule.Lifecycle.Trigger.IsCompound() {
			s.logger.Debug().
				Str("file", rel).
				Str("trigger", rule.Lifecycle.Trigger.String()).
				Msg("Compound trigger clauses treated as satisfied")
		}
		candidates = append(candidates, candidate{path: rel, rule: rule})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan lifecycle candidates: %w", err)
	}
	return candidates, nil
}

// process decides and, in apply mode, performs the lifecycle action for one file
func (s *Service) process(ctx context.Context, c candidate, opts Options) models.CleanupAction {
	action := models.CleanupAction{File: c.path, Rule: c.rule.Name, Timestamp: s.now()}

	switch c.rule.Lifecycle.Action {
	case models.ActionArchive, models.ActionDelete:
	default:
		action.Action = models.CleanupKept
		action.Reason = "lifecycle action is keep"
		return action
	}

	// The allow-list is checked before anything else so no rule or advisory
	// answer can widen it
	if c.rule.Lifecycle.Action == models.ActionDelete && !IsTemporary(path.Base(c.path)) {
		action.Action = models.CleanupRefused
		action.Reason = "not a temporary file, delete refused"
		s.logger.Warn().Str("file", c.path).Str("rule", c.rule.Name).Msg("Refusing to delete non-temporary file")
		return action
	}

	if c.rule.Lifecycle.QueryAdvisory && !opts.SkipAdvisory && s.advisory != nil {
		report, err := s.advisory.AnalyzeFileSafety(ctx, c.path)
		if err != nil {
			action.Action = models.CleanupSkipped
			action.Reason = fmt.Sprintf("advisory check failed: %v", err)
			return action
		}
		if !report.SafeToArchive {
			action.Action = models.CleanupSkipped
			action.Reason = (&models.AdvisoryVeto{Path: c.path, Reason: report.Reason, Sources: report.ActiveReferences}).Error()
			return action
		}
	}

	if c.rule.Lifecycle.Action == models.ActionDelete {
		return s.delete(c, opts, action)
	}
	return s.archive(ctx, c, opts, action)
}

func (s *Service) archive(ctx context.Context, c candidate, opts Options, action models.CleanupAction) models.CleanupAction {
	dest := path.Join(s.archiveDir(c.rule), path.Base(c.path))
	action.Destination = dest

	if _, err := remediation.GuardPath(s.root, c.path); err != nil {
		return failed(action, models.CleanupSkipped, err)
	}
	abs, err := remediation.GuardPath(s.root, dest)
	if err != nil {
		return failed(action, models.CleanupSkipped, err)
	}
	if _, err := os.Lstat(abs); err == nil {
		return failed(action, models.CleanupSkipped, &models.ConflictError{Destination: dest})
	}

	if !opts.Apply {
		action.Action = models.CleanupWouldArchive
		s.logger.Info().Str("file", c.path).Str("destination", dest).Msg("Would archive file")
		return action
	}

	strategy, err := s.relocator.Relocate(ctx, c.path, dest, false)
	if err != nil {
		return failed(action, models.CleanupFailed, err)
	}
	action.Action = models.CleanupArchived
	action.Reason = "trigger " + c.rule.Lifecycle.Trigger.String() + " via " + strategy
	s.logger.Info().Str("file", c.path).Str("destination", dest).Str("strategy", strategy).Msg("File archived")
	return action
}

func (s *Service) delete(c candidate, opts Options, action models.CleanupAction) models.CleanupAction {
	abs, err := remediation.GuardPath(s.root, c.path)
	if err != nil {
		return failed(action, models.CleanupSkipped, err)
	}

	if !opts.Apply {
		action.Action = models.CleanupWouldDelete
		s.logger.Info().Str("file", c.path).Msg("Would delete file")
		return action
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return failed(action, models.CleanupFailed, err)
	}
	if !info.Mode().IsRegular() {
		return failed(action, models.CleanupRefused, fmt.Errorf("not a regular file"))
	}
	if err := os.Remove(abs); err != nil {
		return failed(action, models.CleanupFailed, err)
	}
	action.Action = models.CleanupDeleted
	action.Reason = "trigger " + c.rule.Lifecycle.Trigger.String()
	s.logger.Info().Str("file", c.path).Msg("File deleted")
	return action
}

func failed(action models.CleanupAction, name string, err error) models.CleanupAction {
	action.Action = name
	action.Reason = err.Error()
	return action
}

// archiveDir is the rule's archive location or the configured default
func (s *Service) archiveDir(rule *models.Rule) string {
	if dir := strings.TrimSpace(rule.Lifecycle.ArchiveLocation); dir != "" {
		return models.CleanRelDir(dir)
	}
	return models.CleanRelDir(s.config.Cleanup.ArchiveDir)
}

// fixAction converts a remediation outcome into a run log entry
func (s *Service) fixAction(outcome models.FileOutcome) models.CleanupAction {
	action := models.CleanupAction{
		File:        outcome.Path,
		Destination: outcome.Destination,
		Rule:        "remediation",
		Reason:      outcome.Reason,
		Timestamp:   s.now(),
	}
	switch outcome.State {
	case models.FileStateMoved:
		action.Action = models.CleanupMoved
	case models.FileStatePlanned:
		action.Action = models.CleanupWouldMove
	case models.FileStateFailed:
		action.Action = models.CleanupFailed
	default:
		action.Action = models.CleanupSkipped
	}
	return action
}

// writeLog persists the run log under <log_dir>/<YYYY-MM-DD>/
func (s *Service) writeLog(runLog *models.CleanupLog) error {
	dir := filepath.Join(s.config.Resolve(s.root, s.config.Cleanup.LogDir), runLog.Timestamp.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	name := filepath.Join(dir, "cleanup-"+runLog.Timestamp.Format("150405")+".json")
	if _, err := os.Stat(name); err == nil {
		name = filepath.Join(dir, "cleanup-"+runLog.Timestamp.Format("150405")+"-"+runLog.RunID+".json")
	}

	data, err := json.MarshalIndent(runLog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}
	if err := os.WriteFile(name, data, 0644); err != nil {
		return err
	}
	runLog.LogFile = name
	s.logger.Debug().Str("path", name).Msg("Run log written")
	return nil
}

// recordAudit stores the run summary when history is enabled
func (s *Service) recordAudit(ctx context.Context, runLog *models.CleanupLog, runErr error) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		ID:        runLog.RunID,
		Command:   "cleanup",
		Mode:      runLog.Mode,
		StartedAt: runLog.Timestamp,
		Duration:  runLog.DurationMs,
		Archived:  runLog.Count(models.CleanupArchived),
		Deleted:   runLog.Count(models.CleanupDeleted),
		LogFile:   runLog.LogFile,
	}
	if runLog.Fix != nil {
		entry.Fixed = runLog.Fix.Fixed
		entry.Skipped = runLog.Fix.Skipped
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := s.audit.SaveEntry(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record audit entry")
	}
}

// appendStatus adds a one-line run summary to the shared status document.
// Returns the project-relative path when written.
func (s *Service) appendStatus(runLog *models.CleanupLog) string {
	rel := strings.TrimSpace(s.config.Cleanup.StatusFile)
	if rel == "" {
		return ""
	}
	abs, err := remediation.GuardPath(s.root, models.CleanRelDir(rel))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Status file outside project root, not updated")
		return ""
	}

	line := fmt.Sprintf("- %s cleanup %s: %d moved, %d archived, %d deleted, %d skipped\n",
		runLog.Timestamp.Format("2006-01-02 15:04"),
		runLog.RunID,
		runLog.Count(models.CleanupMoved),
		runLog.Count(models.CleanupArchived),
		runLog.Count(models.CleanupDeleted),
		runLog.Count(models.CleanupSkipped)+runLog.Count(models.CleanupRefused)+runLog.Count(models.CleanupFailed),
	)

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to create status file directory")
		return ""
	}
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to open status file")
		return ""
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to append to status file")
		return ""
	}
	return models.CleanRelDir(rel)
}

// Unresolved reports whether a run left skipped, refused or failed work
func Unresolved(runLog *models.CleanupLog) bool {
	if runLog == nil {
		return false
	}
	if runLog.Fix != nil && runLog.Fix.Unresolved() {
		return true
	}
	if runLog.Mode != models.CleanupApply {
		return false
	}
	return runLog.Count(models.CleanupFailed) > 0 || runLog.Count(models.CleanupRefused) > 0
}

// IsLockContention reports whether err is a lock held by another run
func IsLockContention(err error) bool {
	var lockErr *models.LockContention
	return errors.As(err, &lockErr)
}
