// -----------------------------------------------------------------------
// Last Modified: Friday, 9th October 2026 2:20:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
)

// Service is the file-based advisory client. It reads the live task board and
// the per-agent memory snapshots on every call.
type Service struct {
	config *common.AdvisoryConfig
	root   string
	now    func() time.Time
	logger arbor.ILogger
}

// NewService creates an advisory client for the project at root
func NewService(config *common.AdvisoryConfig, root string, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		root:   root,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for the age heuristic
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AnalyzeFileSafety checks the signals in priority order and stops at the
// first hit: task board, memory snapshots, critical names, then the
// completion-marker age heuristic. Anything else is not safe.
func (s *Service) AnalyzeFileSafety(ctx context.Context, relPath string) (*models.SafetyReport, error) {
	rel := filepath.ToSlash(relPath)
	base := path.Base(rel)
	report := &models.SafetyReport{FilePath: rel}

	if source, ok := s.referencedInTaskBoard(rel, base); ok {
		report.LifecycleStatus = models.LifecycleActive
		report.ActiveReferences = []string{source}
		report.Reason = fmt.Sprintf("referenced in %s", source)
		return report, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if sources := s.referencedInMemory(rel, base); len(sources) > 0 {
		report.LifecycleStatus = models.LifecycleActive
		report.ActiveReferences = sources
		report.Reason = fmt.Sprintf("referenced in agent memory: %s", strings.Join(sources, ", "))
		return report, nil
	}

	if pattern, ok := s.matchesCritical(base); ok {
		report.LifecycleStatus = models.LifecycleCritical
		report.Reason = fmt.Sprintf("name matches critical pattern %q", pattern)
		return report, nil
	}

	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		report.LifecycleStatus = models.LifecycleUnknown
		report.Reason = "file could not be inspected, keeping"
		return report, nil
	}

	if marker, ok := s.completionMarker(base); ok {
		minAge := time.Duration(s.config.MinArchiveAgeDays) * 24 * time.Hour
		age := s.now().Sub(info.ModTime())
		if age > minAge {
			report.SafeToArchive = true
			report.LifecycleStatus = models.LifecycleCompleted
			report.Reason = fmt.Sprintf("%s file older than %d days", marker, s.config.MinArchiveAgeDays)
			return report, nil
		}
		report.LifecycleStatus = models.LifecycleActive
		report.Reason = fmt.Sprintf("%s file is only %d day(s) old", marker, int(age.Hours()/24))
		return report, nil
	}

	report.LifecycleStatus = models.LifecycleUnknown
	report.Reason = "no lifecycle signal, keeping by default"
	return report, nil
}

// referencedInTaskBoard reports whether the task board mentions the file
func (s *Service) referencedInTaskBoard(rel, base string) (string, bool) {
	if s.config.TaskBoard == "" {
		return "", false
	}
	data, err := os.ReadFile(s.resolve(s.config.TaskBoard))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("task_board", s.config.TaskBoard).Msg("Failed to read task board")
		}
		return "", false
	}
	content := string(data)
	if strings.Contains(content, rel) || strings.Contains(content, base) {
		return filepath.ToSlash(s.config.TaskBoard), true
	}
	return "", false
}

// memorySnapshot is the part of an agent memory file used for naming sources
type memorySnapshot struct {
	AgentName string `json:"agent_name"`
}

// referencedInMemory returns the agents whose memory snapshots mention the file
func (s *Service) referencedInMemory(rel, base string) []string {
	if s.config.MemoryDir == "" {
		return nil
	}
	glob := s.config.MemoryGlob
	if glob == "" {
		glob = "*.json"
	}
	files, err := filepath.Glob(filepath.Join(s.resolve(s.config.MemoryDir), glob))
	if err != nil {
		s.logger.Warn().Err(err).Str("glob", glob).Msg("Invalid memory snapshot pattern")
		return nil
	}
	sort.Strings(files)

	var sources []string
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", file).Msg("Failed to read memory snapshot")
			continue
		}
		content := string(data)
		if !strings.Contains(content, rel) && !strings.Contains(content, base) {
			continue
		}

		source := filepath.Base(file)
		var snapshot memorySnapshot
		if json.Unmarshal(data, &snapshot) == nil && snapshot.AgentName != "" {
			source = snapshot.AgentName
		}
		sources = append(sources, source)
	}
	return sources
}

// matchesCritical checks the base name only so a directory such as
// docs/readme-notes does not protect everything beneath it
func (s *Service) matchesCritical(base string) (string, bool) {
	lower := strings.ToLower(base)
	for _, pattern := range s.config.CriticalPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern, true
		}
	}
	return "", false
}

func (s *Service) completionMarker(base string) (string, bool) {
	upper := strings.ToUpper(base)
	for _, marker := range s.config.CompletionMarkers {
		if marker != "" && strings.Contains(upper, strings.ToUpper(marker)) {
			return marker, true
		}
	}
	return "", false
}

func (s *Service) resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Bypass is the advisory client used when the operator skips the check.
// Every file is reported safe.
type Bypass struct{}

// NewBypass returns the bypass client
func NewBypass() interfaces.AdvisoryClient {
	return Bypass{}
}

// AnalyzeFileSafety reports every file as safe
func (Bypass) AnalyzeFileSafety(ctx context.Context, relPath string) (*models.SafetyReport, error) {
	return &models.SafetyReport{
		FilePath:        filepath.ToSlash(relPath),
		SafeToArchive:   true,
		LifecycleStatus: models.LifecycleBypassed,
		Reason:          "advisory check skipped",
	}, nil
}
