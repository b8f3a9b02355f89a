// -----------------------------------------------------------------------
// Package validation runs classification passes over the project and builds
// the violation report consumed by the CLI and the remediation engine
// -----------------------------------------------------------------------

package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/git"
	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/cache"
	"github.com/ternarybob/canon/internal/services/classifier"
)

// Mode selects which files a validation pass looks at
type Mode string

// Mode constants
const (
	ModePreCommit Mode = "pre-commit" // Files staged in the git index
	ModeFull      Mode = "full"       // Whole tree plus forbidden scan and required directories
	ModeFiles     Mode = "files"      // Explicit file list
)

// ParseMode converts a flag value to a Mode
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModePreCommit:
		return ModePreCommit, nil
	case ModeFull, "":
		return ModeFull, nil
	case ModeFiles:
		return ModeFiles, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (want pre-commit, full or files)", value)
	}
}

// Report is the result of one validation pass
type Report struct {
	Mode            Mode                   `json:"mode"`
	EnforcementMode models.EnforcementMode `json:"enforcement_mode"`
	Checked         int                    `json:"checked"`
	Errors          int                    `json:"errors"`
	Warnings        int                    `json:"warnings"`
	Violations      []models.Violation     `json:"violations"`
	Cache           cache.Stats            `json:"cache"`
	DurationMs      int64                  `json:"duration_ms"`
}

// HasBlocking reports whether any error-severity violation was found
func (r *Report) HasBlocking() bool {
	return r.Errors > 0
}

// ForFile returns the violations reported for one path
func (r *Report) ForFile(relPath string) []models.Violation {
	var out []models.Violation
	for _, v := range r.Violations {
		if v.FilePath == relPath {
			out = append(out, v)
		}
	}
	return out
}

func (r *Report) add(v *models.Violation) {
	if v == nil {
		return
	}
	r.Violations = append(r.Violations, *v)
	if v.Severity == models.SeverityError {
		r.Errors++
	} else {
		r.Warnings++
	}
}

// Service runs validation passes
type Service struct {
	classifier *classifier.Service
	cache      *cache.Service
	repo       *git.Repository
	logger     arbor.ILogger
}

// NewService creates a validation service. repo is only needed for
// pre-commit mode.
func NewService(classifier *classifier.Service, cache *cache.Service, repo *git.Repository, logger arbor.ILogger) *Service {
	return &Service{
		classifier: classifier,
		cache:      cache,
		repo:       repo,
		logger:     logger,
	}
}

// Validate runs one pass. files is only used in files mode and may hold
// absolute paths or paths relative to the project root.
func (s *Service) Validate(ctx context.Context, mode Mode, files []string) (*Report, error) {
	start := time.Now()
	report := &Report{
		Mode:            mode,
		EnforcementMode: s.classifier.Rules().Settings.EnforcementMode,
		Violations:      []models.Violation{},
	}
	// The commit hook always blocks, whatever the configured mode
	if mode == ModePreCommit {
		report.EnforcementMode = models.EnforcementStrict
	}

	s.cache.Load(ctx)

	switch mode {
	case ModeFull:
		if err := s.validateTree(ctx, report); err != nil {
			return nil, err
		}
	case ModePreCommit:
		if s.repo == nil {
			return nil, fmt.Errorf("pre-commit mode requires a git repository")
		}
		staged, err := s.repo.StagedFiles(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list staged files: %w", err)
		}
		if err := s.validateFiles(ctx, report, staged); err != nil {
			return nil, err
		}
	case ModeFiles:
		if err := s.validateFiles(ctx, report, files); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown validation mode %q", mode)
	}

	if err := s.cache.Persist(ctx, mode == ModeFull); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist violation cache")
	}

	sort.SliceStable(report.Violations, func(i, j int) bool {
		return report.Violations[i].FilePath < report.Violations[j].FilePath
	})
	report.Cache = s.cache.Stats()
	report.DurationMs = time.Since(start).Milliseconds()

	s.logger.Info().
		Str("mode", string(mode)).
		Int("checked", report.Checked).
		Int("errors", report.Errors).
		Int("warnings", report.Warnings).
		Int("cache_hits", report.Cache.Hits).
		Msg("Validation complete")

	return report, nil
}

func (s *Service) validateTree(ctx context.Context, report *Report) error {
	err := s.classifier.Walk(ctx, func(rel string, info os.FileInfo) error {
		report.Checked++
		report.add(s.classify(rel, info, report.EnforcementMode))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk project: %w", err)
	}

	forbidden, err := s.classifier.ScanForbidden(ctx)
	if err != nil {
		return fmt.Errorf("forbidden pattern scan failed: %w", err)
	}
	for _, v := range forbidden {
		report.add(v)
	}

	for _, v := range s.classifier.CheckRequiredDirectories() {
		report.add(v)
	}
	return nil
}

func (s *Service) validateFiles(ctx context.Context, report *Report, files []string) error {
	root := s.classifier.Root()
	seen := make(map[string]bool)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, ok := s.relative(root, file)
		if !ok {
			s.logger.Warn().Str("file", file).Msg("Skipping file outside the project root")
			continue
		}
		if seen[rel] || s.classifier.IsIgnoredFile(rel) {
			continue
		}
		seen[rel] = true

		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !info.Mode().IsRegular() {
			s.logger.Debug().Str("file", rel).Msg("Skipping missing or non-regular file")
			continue
		}

		report.Checked++
		if forbidden := s.classifier.CheckForbidden(rel); forbidden != nil {
			report.add(forbidden)
		}
		report.add(s.classify(rel, info, report.EnforcementMode))
	}
	return nil
}

// classify returns the location violation for one file. Cached entries carry
// the severity of the configured mode, so a stricter pass raises it.
func (s *Service) classify(rel string, info os.FileInfo, enforcement models.EnforcementMode) *models.Violation {
	v := s.cache.GetOrCompute(rel, info, func() *models.Violation {
		return s.classifier.Classify(rel)
	})
	if v == nil || enforcement != models.EnforcementStrict || v.Severity == models.SeverityError {
		return v
	}
	raised := *v
	raised.Severity = models.SeverityError
	return &raised
}

// relative converts a file argument to a clean project-relative slash path
func (s *Service) relative(root, file string) (string, bool) {
	p := filepath.FromSlash(file)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}
