package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// cacheSnapshotKey is the single key the violation cache lives under
const cacheSnapshotKey = "structure-validation"

// cacheRecord is the stored form of the violation cache
type cacheRecord struct {
	Key         string
	Timestamp   time.Time
	RulesDigest string
	Entries     map[string]models.CacheEntry
}

// CacheStorage implements the CacheStorage interface for Badger
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// LoadSnapshot reads the persisted cache
func (s *CacheStorage) LoadSnapshot(ctx context.Context) (*models.CacheSnapshot, error) {
	var record cacheRecord
	err := s.db.Store().Get(cacheSnapshotKey, &record)
	if err == badgerhold.ErrNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	snapshot := &models.CacheSnapshot{
		Timestamp:   record.Timestamp,
		RulesDigest: record.RulesDigest,
		Entries:     record.Entries,
	}
	if snapshot.Entries == nil {
		snapshot.Entries = make(map[string]models.CacheEntry)
	}
	return snapshot, nil
}

// SaveSnapshot overwrites the persisted cache
func (s *CacheStorage) SaveSnapshot(ctx context.Context, snapshot *models.CacheSnapshot) error {
	record := cacheRecord{
		Key:         cacheSnapshotKey,
		Timestamp:   snapshot.Timestamp,
		RulesDigest: snapshot.RulesDigest,
		Entries:     snapshot.Entries,
	}
	if err := s.db.Store().Upsert(cacheSnapshotKey, &record); err != nil {
		return fmt.Errorf("failed to save cache snapshot: %w", err)
	}
	s.logger.Debug().Int("entries", len(snapshot.Entries)).Msg("Cache snapshot saved")
	return nil
}

// Clear removes the persisted cache
func (s *CacheStorage) Clear(ctx context.Context) error {
	err := s.db.Store().Delete(cacheSnapshotKey, &cacheRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to clear cache snapshot: %w", err)
	}
	return nil
}
