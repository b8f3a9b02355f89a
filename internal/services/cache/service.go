// Package cache memoizes classification results keyed by project-relative
// path and a modification-time fingerprint. The whole snapshot is discarded
// once it is older than the configured TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
)

// ComputeFunc classifies a single file
type ComputeFunc func() *models.Violation

// Stats describes cache behaviour during one pass
type Stats struct {
	Enabled   bool   `json:"enabled"`
	Hits      int    `json:"hits"`
	Misses    int    `json:"misses"`
	Entries   int    `json:"entries"`
	Discarded string `json:"discarded,omitempty"` // Why the persisted snapshot was thrown away
}

// Service provides violation caching for the validation pass.
// Not safe for concurrent use.
type Service struct {
	storage  interfaces.CacheStorage
	root     string
	ttl      time.Duration
	enabled  bool
	digest   string
	now      func() time.Time
	snapshot *models.CacheSnapshot
	touched  map[string]bool
	stats    Stats
	logger   arbor.ILogger
}

// NewService creates a cache service for the project at root using the
// cache settings of the rule set. Snapshots computed under a different rule
// set are discarded on load.
func NewService(storage interfaces.CacheStorage, root string, rules *models.RuleSet, logger arbor.ILogger) *Service {
	settings := rules.Settings
	return &Service{
		storage: storage,
		root:    root,
		ttl:     time.Duration(settings.CacheTTLSeconds) * time.Second,
		enabled: settings.CacheValidationResults && storage != nil,
		digest:  RulesDigest(rules),
		now:     time.Now,
		touched: make(map[string]bool),
		stats:   Stats{Enabled: settings.CacheValidationResults && storage != nil},
		logger:  logger,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Fingerprint digests a modification time. Equal fingerprints mean the file
// is treated as unchanged.
func Fingerprint(modTime time.Time) string {
	sum := xxhash.Sum64String(strconv.FormatInt(modTime.UnixNano(), 10))
	return strconv.FormatUint(sum, 16)
}

// RulesDigest fingerprints everything in the rule set that can change a
// cached classification, severity included
func RulesDigest(rules *models.RuleSet) string {
	data, err := json.Marshal(rules)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Load reads the persisted snapshot. It never fails: a missing, corrupted or
// expired snapshot is replaced by an empty one, as is a snapshot written
// under a different rule set.
func (s *Service) Load(ctx context.Context) {
	s.snapshot = s.newSnapshot()
	s.touched = make(map[string]bool)
	if !s.enabled {
		return
	}

	snapshot, err := s.storage.LoadSnapshot(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return
	case err != nil:
		s.stats.Discarded = "unreadable"
		s.logger.Warn().Err(err).Msg("Discarding unreadable violation cache")
		if clearErr := s.storage.Clear(ctx); clearErr != nil {
			s.logger.Warn().Err(clearErr).Msg("Failed to remove unreadable violation cache")
		}
		return
	}

	age := s.now().Sub(snapshot.Timestamp)
	if s.ttl <= 0 || age > s.ttl {
		s.stats.Discarded = "expired"
		s.logger.Debug().Dur("age", age).Dur("ttl", s.ttl).Msg("Violation cache expired, rescanning")
		return
	}

	if snapshot.RulesDigest != s.digest {
		s.stats.Discarded = "rules changed"
		s.logger.Debug().Str("cached", snapshot.RulesDigest).Str("current", s.digest).Msg("Rule set changed, rescanning")
		return
	}

	s.snapshot = snapshot
	s.logger.Debug().Int("entries", len(snapshot.Entries)).Msg("Violation cache loaded")
}

// GetOrCompute returns the cached violation for relPath when its fingerprint
// is unchanged, otherwise calls compute and records the result. info may be
// nil, in which case the file is stat'ed.
func (s *Service) GetOrCompute(relPath string, info fs.FileInfo, compute ComputeFunc) *models.Violation {
	if !s.enabled {
		return compute()
	}
	if s.snapshot == nil {
		s.snapshot = s.newSnapshot()
	}

	if info == nil {
		var err error
		info, err = os.Stat(filepath.Join(s.root, filepath.FromSlash(relPath)))
		if err != nil {
			s.stats.Misses++
			return compute()
		}
	}

	fingerprint := Fingerprint(info.ModTime())
	s.touched[relPath] = true

	if entry, ok := s.snapshot.Entries[relPath]; ok && entry.Fingerprint == fingerprint {
		s.stats.Hits++
		if len(entry.Violations) == 0 {
			return nil
		}
		v := entry.Violations[0]
		return &v
	}

	s.stats.Misses++
	violation := compute()
	entry := models.CacheEntry{Fingerprint: fingerprint, Violations: []models.Violation{}}
	if violation != nil {
		entry.Violations = append(entry.Violations, *violation)
	}
	s.snapshot.Entries[relPath] = entry
	return violation
}

// Persist writes the snapshot stamped with the current time. With prune,
// entries not looked up during this pass are dropped first.
func (s *Service) Persist(ctx context.Context, prune bool) error {
	if !s.enabled || s.snapshot == nil {
		return nil
	}
	if prune {
		for path := range s.snapshot.Entries {
			if !s.touched[path] {
				delete(s.snapshot.Entries, path)
			}
		}
	}
	s.snapshot.Timestamp = s.now()
	s.snapshot.RulesDigest = s.digest
	return s.storage.SaveSnapshot(ctx, s.snapshot)
}

func (s *Service) newSnapshot() *models.CacheSnapshot {
	snapshot := models.NewCacheSnapshot(s.now())
	snapshot.RulesDigest = s.digest
	return snapshot
}

// Stats returns counters for the current pass
func (s *Service) Stats() Stats {
	stats := s.stats
	if s.snapshot != nil {
		stats.Entries = len(s.snapshot.Entries)
	}
	return stats
}
