package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AuditStorage implements the AuditStorage interface for Badger
type AuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new AuditStorage instance
func NewAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditStorage {
	return &AuditStorage{
		db:     db,
		logger: logger,
	}
}

// SaveEntry inserts or replaces an audit entry
func (s *AuditStorage) SaveEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("audit entry ID is required")
	}
	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an audit entry by ID
func (s *AuditStorage) GetEntry(ctx context.Context, id string) (*models.AuditEntry, error) {
	var entry models.AuditEntry
	err := s.db.Store().Get(id, &entry)
	if err == badgerhold.ErrNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return &entry, nil
}

// ListEntries returns entries newest first. An empty command lists every
// command; limit <= 0 means no limit.
func (s *AuditStorage) ListEntries(ctx context.Context, command string, limit int) ([]*models.AuditEntry, error) {
	query := badgerhold.Where("ID").Ne("")
	if command != "" {
		query = badgerhold.Where("Command").Eq(command).Index("Command")
	}
	query = query.SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.AuditEntry
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	result := make([]*models.AuditEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}
