// Package classifier matches project files against the rule set. It reports
// misplaced files, forbidden-pattern hits and missing required directories.
// Paths handed in and out are project-relative with forward slashes.
package classifier

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/models"
)

// defaultIgnoreNames are directory names pruned wherever they appear
var defaultIgnoreNames = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
	"dist",
	"build",
	".next",
	"target",
	".idea",
	".vscode",
	".pytest_cache",
	".mypy_cache",
	"coverage",
	".DS_Store",
}

// toolStateDirs hold canon's own state and are never classified
var toolStateDirs = []string{
	".claude/backups",
	".claude/cache",
	".claude/logs",
	".claude/locks",
	".claude/data",
}

// WalkFunc is called for every regular file that survives ignore pruning
type WalkFunc func(relPath string, info fs.FileInfo) error

// Service classifies files under a project root
type Service struct {
	rules       *models.RuleSet
	root        string
	ignoreNames map[string]bool
	ignorePaths []string
	logger      arbor.ILogger
}

// NewService creates a classifier for the project at root. Entries of
// settings.ignore_directories containing a slash are treated as
// project-relative paths, the rest as directory names.
func NewService(rules *models.RuleSet, root string, logger arbor.ILogger) *Service {
	s := &Service{
		rules:       rules,
		root:        root,
		ignoreNames: make(map[string]bool),
		ignorePaths: append([]string(nil), toolStateDirs...),
		logger:      logger,
	}
	for _, name := range defaultIgnoreNames {
		s.ignoreNames[name] = true
	}
	for _, entry := range rules.Settings.IgnoreDirectories {
		entry = strings.TrimSuffix(strings.TrimSpace(entry), "/")
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			s.ignorePaths = append(s.ignorePaths, models.CleanRelDir(entry))
		} else {
			s.ignoreNames[entry] = true
		}
	}
	return s
}

// IgnorePaths excludes extra project-relative files or directories from
// every walk, such as the advisory task board and memory directory. Empty
// entries and entries outside the root are dropped.
func (s *Service) IgnorePaths(paths ...string) *Service {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		p = models.CleanRelDir(p)
		if p == "." || p == ".." || strings.HasPrefix(p, "../") || path.IsAbs(p) {
			continue
		}
		s.ignorePaths = append(s.ignorePaths, p)
	}
	return s
}

// Root returns the project root the classifier walks
func (s *Service) Root() string {
	return s.root
}

// Rules returns the rule set in use
func (s *Service) Rules() *models.RuleSet {
	return s.rules
}

// Match returns the first rule in declaration order matching the path
func (s *Service) Match(relPath string) (*models.Rule, bool) {
	return s.rules.FirstMatch(normalise(relPath))
}

// Classify returns the location violation for a file, or nil when the file
// is unclassified, has no fixed home, or already sits under its canonical
// directory
func (s *Service) Classify(relPath string) *models.Violation {
	rel := normalise(relPath)
	rule, ok := s.rules.FirstMatch(rel)
	if !ok || !rule.HasFixedHome() {
		return nil
	}
	if models.IsUnder(path.Dir(rel), rule.CanonicalDir()) {
		return nil
	}
	return models.NewLocationViolation(rel, rule, s.rules.Settings.Severity())
}

// CheckForbidden returns the forbidden-pattern violation for a single file
func (s *Service) CheckForbidden(relPath string) *models.Violation {
	rel := normalise(relPath)
	dir, base := path.Dir(rel), path.Base(rel)
	for i := range s.rules.ForbiddenPatterns {
		fp := &s.rules.ForbiddenPatterns[i]
		location := models.CleanRelDir(fp.Location)
		inScope := dir == location
		if fp.Recursive {
			inScope = models.IsUnder(dir, location)
		}
		if inScope && fp.Forbids(base) {
			return models.NewForbiddenViolation(rel, fp)
		}
	}
	return nil
}

// ScanForbidden scans every forbidden-pattern location. Non-recursive
// entries only look at the files directly inside the location.
func (s *Service) ScanForbidden(ctx context.Context) ([]*models.Violation, error) {
	var violations []*models.Violation
	seen := make(map[string]bool)

	report := func(rel string, fp *models.ForbiddenPattern) {
		if seen[rel] || s.IsIgnoredFile(rel) || !fp.Forbids(path.Base(rel)) {
			return
		}
		seen[rel] = true
		violations = append(violations, models.NewForbiddenViolation(rel, fp))
	}

	for i := range s.rules.ForbiddenPatterns {
		fp := &s.rules.ForbiddenPatterns[i]
		location := models.CleanRelDir(fp.Location)
		if location == ".." || strings.HasPrefix(location, "../") || path.IsAbs(location) {
			s.logger.Warn().Str("location", fp.Location).Msg("Forbidden pattern location is outside the project, ignoring")
			continue
		}
		if s.IsIgnored(location) {
			continue
		}

		absDir := filepath.Join(s.root, filepath.FromSlash(location))
		if fp.Recursive {
			err := s.walkFrom(ctx, absDir, func(rel string, _ fs.FileInfo) error {
				report(rel, fp)
				return nil
			})
			if err != nil {
				return violations, err
			}
			continue
		}

		entries, err := os.ReadDir(absDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return violations, err
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				report(path.Join(location, entry.Name()), fp)
			}
		}
	}

	s.logger.Debug().Int("violations", len(violations)).Msg("Forbidden pattern scan complete")
	return violations, nil
}

// CheckRequiredDirectories reports every required directory that is missing,
// in name order
func (s *Service) CheckRequiredDirectories() []*models.Violation {
	names := make([]string, 0, len(s.rules.DirectoryRules))
	for name, rule := range s.rules.DirectoryRules {
		if rule.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var violations []*models.Violation
	for _, name := range names {
		dir := models.CleanRelDir(name)
		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(dir)))
		if err == nil && info.IsDir() {
			continue
		}
		violations = append(violations, models.NewMissingDirectoryViolation(dir, s.rules.DirectoryRules[name]))
	}
	return violations
}

// Walk visits every regular file of the project in lexical order, pruning
// ignored directories
func (s *Service) Walk(ctx context.Context, fn WalkFunc) error {
	return s.walkFrom(ctx, s.root, fn)
}

// IsIgnored reports whether a project-relative directory is pruned
func (s *Service) IsIgnored(relDir string) bool {
	rel := normalise(relDir)
	if rel == "." {
		return false
	}
	for _, segment := range strings.Split(rel, "/") {
		if s.ignoreNames[segment] {
			return true
		}
	}
	for _, p := range s.ignorePaths {
		if models.IsUnder(rel, p) {
			return true
		}
	}
	return false
}

// IsIgnoredFile reports whether a project-relative file is skipped, either
// because its directory is pruned or because the file itself is ignored
func (s *Service) IsIgnoredFile(relPath string) bool {
	rel := normalise(relPath)
	if s.IsIgnored(path.Dir(rel)) {
		return true
	}
	for _, p := range s.ignorePaths {
		if rel == p {
			return true
		}
	}
	return false
}

func (s *Service) walkFrom(ctx context.Context, start string, fn WalkFunc) error {
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return filepath.SkipDir
			}
			s.logger.Warn().Err(err).Str("path", p).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && s.IsIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.IsIgnoredFile(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		return fn(rel, info)
	})
}

// normalise turns any relative path into a clean slash path
func normalise(relPath string) string {
	return path.Clean(strings.TrimPrefix(filepath.ToSlash(relPath), "./"))
}
