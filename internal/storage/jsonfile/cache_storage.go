// Package jsonfile stores the violation cache as a single JSON document, the
// default backend and the format other tooling reads.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
)

// CacheStorage implements the CacheStorage interface on a JSON file
type CacheStorage struct {
	path   string
	logger arbor.ILogger
}

// NewCacheStorage creates a file-backed cache store at path
func NewCacheStorage(path string, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		path:   path,
		logger: logger,
	}
}

// LoadSnapshot reads and decodes the cache file. A file that does not decode
// is reported as an error so the caller can discard it.
func (s *CacheStorage) LoadSnapshot(ctx context.Context) (*models.CacheSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file %s: %w", s.path, err)
	}

	var snapshot models.CacheSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode cache file %s: %w", s.path, err)
	}
	if snapshot.Entries == nil {
		snapshot.Entries = make(map[string]models.CacheEntry)
	}
	return &snapshot, nil
}

// SaveSnapshot overwrites the cache file
func (s *CacheStorage) SaveSnapshot(ctx context.Context, snapshot *models.CacheSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", s.path, err)
	}
	s.logger.Debug().Str("path", s.path).Int("entries", len(snapshot.Entries)).Msg("Cache snapshot saved")
	return nil
}

// Clear removes the cache file
func (s *CacheStorage) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file %s: %w", s.path, err)
	}
	return nil
}
