// -----------------------------------------------------------------------
// Last Modified: Thursday, 8th October 2026 10:05:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/canon/internal/models"
)

// CacheStorage persists the violation cache snapshot
type CacheStorage interface {
	// LoadSnapshot returns models.ErrNotFound when nothing has been persisted.
	// Any other error means the stored snapshot is unreadable.
	LoadSnapshot(ctx context.Context) (*models.CacheSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *models.CacheSnapshot) error
	Clear(ctx context.Context) error
}

// AuditStorage - interface for run history persistence
type AuditStorage interface {
	SaveEntry(ctx context.Context, entry *models.AuditEntry) error
	GetEntry(ctx context.Context, id string) (*models.AuditEntry, error)
	ListEntries(ctx context.Context, command string, limit int) ([]*models.AuditEntry, error)
}

// StorageManager - interface for the persistent stores opened for a run
type StorageManager interface {
	CacheStorage() CacheStorage
	AuditStorage() AuditStorage
	Close() error
}
