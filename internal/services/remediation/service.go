// -----------------------------------------------------------------------
// Last Modified: Monday, 12th October 2026 11:48:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

// Package remediation turns violations into planned moves and, outside dry
// runs, performs them behind the environment guard, the path guard, the
// advisory check, the conflict policy and a verified backup.
package remediation

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/git"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/backup"
	"github.com/ternarybob/canon/internal/services/validation"
)

// Options control one remediation batch
type Options struct {
	DryRun       bool
	SkipAdvisory bool // Do not consult the advisory client
}

// Dependencies are the collaborators of the remediation engine
type Dependencies struct {
	Config    *common.Config
	Rules     *models.RuleSet
	Root      string
	Validator *validation.Service
	Advisory  interfaces.AdvisoryClient
	Relocator interfaces.Relocator
	Backup    *backup.Service
	Repo      *git.Repository // nil disables the commit step
	LookupEnv func(string) (string, bool)
	Logger    arbor.ILogger
}

// Service is the remediation engine
type Service struct {
	config    *common.Config
	rules     *models.RuleSet
	root      string
	validator *validation.Service
	advisory  interfaces.AdvisoryClient
	relocator interfaces.Relocator
	backup    *backup.Service
	repo      *git.Repository
	lookupEnv func(string) (string, bool)
	now       func() time.Time
	logger    arbor.ILogger
}

// NewService creates the remediation engine
func NewService(deps Dependencies) *Service {
	return &Service{
		config:    deps.Config,
		rules:     deps.Rules,
		root:      deps.Root,
		validator: deps.Validator,
		advisory:  deps.Advisory,
		relocator: deps.Relocator,
		backup:    deps.Backup,
		repo:      deps.Repo,
		lookupEnv: deps.LookupEnv,
		now:       time.Now,
		logger:    deps.Logger,
	}
}

// WithClock replaces the time source used for commit messages
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// moveItem is one candidate relocation handed to the pipeline
type moveItem struct {
	source      string
	destination string
	rule        string
	consult     bool // Ask the advisory client first
}

// batch accumulates the outcome of one remediation run
type batch struct {
	result   *models.FixResult
	realRoot string
	touched  []string
}

// FixViolations relocates every misplaced file reported by a full
// validation pass. Error violations are always processed; warnings only
// outside dry runs. The environment check is fatal; everything after it is
// isolated per file.
func (s *Service) FixViolations(ctx context.Context, opts Options) (*models.FixResult, error) {
	b, err := s.begin(opts)
	if err != nil {
		return nil, err
	}

	report, err := s.validator.Validate(ctx, validation.ModeFull, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to collect violations: %w", err)
	}

	consult := s.rules.Settings.QueryMemoryExpert && !opts.SkipAdvisory && s.advisory != nil
	for _, v := range uniqueByFile(report.Violations) {
		if err := ctx.Err(); err != nil {
			return b.result, err
		}
		if v.Severity != models.SeverityError && opts.DryRun {
			continue
		}

		switch {
		case v.IsForbidden():
			m := newFileMachine(v.FilePath, s.logger)
			m.skip(ctx, "forbidden pattern: "+v.Message)
			s.record(b, m)
		case v.IsMissingDirectory():
			s.createDirectory(ctx, b, v, opts)
		default:
			dest, ok := v.Destination()
			if !ok {
				m := newFileMachine(v.FilePath, s.logger)
				m.skip(ctx, "no canonical destination")
				s.record(b, m)
				continue
			}
			s.process(ctx, b, moveItem{source: v.FilePath, destination: dest, rule: v.RuleName, consult: consult}, opts)
		}
	}

	s.finish(ctx, b, "relocate")
	return b.result, nil
}

// FixMigration applies the static from/to migrations of the rule set, or the
// built-in defaults when it declares none. The advisory client is not
// consulted; migrations are explicit operator requests.
func (s *Service) FixMigration(ctx context.Context, opts Options) (*models.FixResult, error) {
	b, err := s.begin(opts)
	if err != nil {
		return nil, err
	}

	migrations := s.rules.Migrations
	if len(migrations) == 0 {
		migrations = DefaultMigrations()
	}

	for _, migration := range migrations {
		items, err := s.expandMigration(migration)
		if err != nil {
			s.logger.Warn().Err(err).Str("from", migration.From).Msg("Skipping migration")
			m := newFileMachine(migration.From, s.logger)
			m.skip(ctx, err.Error())
			s.record(b, m)
			continue
		}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return b.result, err
			}
			s.process(ctx, b, item, opts)
		}
	}

	s.finish(ctx, b, "migrate")
	return b.result, nil
}

// begin runs the fatal upfront checks
func (s *Service) begin(opts Options) (*batch, error) {
	if err := common.CheckEnvironment(s.config, s.lookupEnv); err != nil {
		s.logger.Error().Err(err).Msg("Remediation refused")
		return nil, err
	}

	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	return &batch{
		result:   &models.FixResult{DryRun: opts.DryRun, Outcomes: []models.FileOutcome{}},
		realRoot: realRoot,
	}, nil
}

// process runs one file through advisory, guards, conflict policy, backup
// and move
func (s *Service) process(ctx context.Context, b *batch, item moveItem, opts Options) {
	m := newFileMachine(item.source, s.logger)
	defer s.record(b, m)

	if item.consult {
		report, err := s.advisory.AnalyzeFileSafety(ctx, item.source)
		if err != nil {
			m.skip(ctx, fmt.Sprintf("advisory check failed: %v", err))
			return
		}
		if !report.SafeToArchive {
			veto := &models.AdvisoryVeto{Path: item.source, Reason: report.Reason, Sources: report.ActiveReferences}
			m.skip(ctx, veto.Error())
			return
		}
	}

	src, err := guardPath(s.root, b.realRoot, item.source)
	if err != nil {
		m.skip(ctx, err.Error())
		return
	}
	dst, err := guardPath(s.root, b.realRoot, item.destination)
	if err != nil {
		m.skip(ctx, err.Error())
		return
	}
	if src == dst {
		m.skip(ctx, "already at destination")
		return
	}

	overwrite := false
	if _, err := os.Lstat(dst); err == nil {
		if s.rules.Settings.RequireConfirmation {
			m.skip(ctx, (&models.ConflictError{Destination: item.destination}).Error())
			return
		}
		overwrite = true
	}

	m.plan(ctx, item.destination)
	b.result.Planned = append(b.result.Planned, models.MovePlan{Source: item.source, Destination: item.destination, Rule: item.rule})

	if opts.DryRun {
		if _, err := os.Stat(filepath.Dir(dst)); err != nil {
			s.logger.Info().Str("directory", path.Dir(item.destination)).Msg("Would create directory")
		}
		s.logger.Info().Str("source", item.source).Str("destination", item.destination).Msg("Would move file")
		return
	}

	if s.rules.Settings.BackupBeforeMove && s.backup != nil {
		backupPath, err := s.backup.Backup(item.source)
		if err != nil {
			m.fail(ctx, fmt.Sprintf("backup failed: %v", err))
			return
		}
		m.outcome.Backup = backupPath
		if overwrite {
			if _, err := s.backup.Backup(item.destination); err != nil {
				m.fail(ctx, fmt.Sprintf("backup of overwritten destination failed: %v", err))
				return
			}
		}
	}

	strategy, err := s.relocator.Relocate(ctx, item.source, item.destination, overwrite)
	if err != nil {
		m.fail(ctx, err.Error())
		return
	}

	m.moved(ctx, strategy)
	b.touched = append(b.touched, item.source, item.destination)
}

// createDirectory handles a missing required directory
func (s *Service) createDirectory(ctx context.Context, b *batch, v models.Violation, opts Options) {
	m := newFileMachine(v.FilePath, s.logger)
	defer s.record(b, m)

	dir, err := guardPath(s.root, b.realRoot, v.FilePath)
	if err != nil {
		m.skip(ctx, err.Error())
		return
	}

	m.plan(ctx, v.FilePath)
	if opts.DryRun {
		s.logger.Info().Str("directory", v.FilePath).Msg("Would create required directory")
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		m.fail(ctx, err.Error())
		return
	}
	m.moved(ctx, "mkdir")
}

// record folds a finished machine into the batch totals
func (s *Service) record(b *batch, m *fileMachine) {
	switch m.state() {
	case models.FileStateMoved:
		b.result.Fixed++
	case models.FileStateSkipped, models.FileStateFailed:
		b.result.Skipped++
		s.logger.Warn().Str("file", m.outcome.Path).Str("reason", m.outcome.Reason).Msg("File not remediated")
	}
	b.result.Outcomes = append(b.result.Outcomes, m.outcome)
}

// finish commits the batch when enabled
func (s *Service) finish(ctx context.Context, b *batch, action string) {
	if !b.result.DryRun && len(b.touched) > 0 {
		b.result.Commit = s.Commit(ctx, action, b.result.Fixed, b.touched)
	}
	s.logger.Info().
		Bool("dry_run", b.result.DryRun).
		Int("fixed", b.result.Fixed).
		Int("skipped", b.result.Skipped).
		Int("planned", len(b.result.Planned)).
		Msg("Remediation complete")
}

// Commit stages and commits paths as one commit when git_commit_archives is
// enabled. Failures are logged and yield an empty hash.
func (s *Service) Commit(ctx context.Context, action string, count int, paths []string) string {
	if !s.rules.Settings.GitCommitArchives || s.repo == nil || len(paths) == 0 {
		return ""
	}
	if !s.repo.IsRepository(ctx) {
		s.logger.Warn().Msg("Commit requested but the project is not a git repository")
		return ""
	}

	message := common.RenderTemplate(s.rules.Settings.GitCommitMessageTemplate, map[string]string{
		"action": action,
		"count":  strconv.Itoa(count),
		"date":   s.now().Format("2006-01-02"),
		"files":  strings.Join(paths, ", "),
	}, s.logger)

	hash, err := s.repo.CommitPaths(ctx, message, paths)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to commit changes, files were already moved")
		return ""
	}
	if hash != "" {
		s.logger.Info().Str("commit", hash).Str("message", message).Msg("Changes committed")
	}
	return hash
}

// GuardPath resolves a project-relative path for the given root and rejects
// anything that escapes it
func GuardPath(root, relPath string) (string, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	return guardPath(root, realRoot, relPath)
}

// uniqueByFile keeps the first violation per file, preferring a forbidden
// hit so it is never auto-moved
func uniqueByFile(violations []models.Violation) []models.Violation {
	index := make(map[string]int)
	var out []models.Violation
	for _, v := range violations {
		if i, ok := index[v.FilePath]; ok {
			if v.IsForbidden() {
				out[i] = v
			}
			continue
		}
		index[v.FilePath] = len(out)
		out = append(out, v)
	}
	return out
}
