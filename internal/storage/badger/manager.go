package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	cache  interfaces.CacheStorage
	audit  interfaces.AuditStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		cache:  NewCacheStorage(db, logger),
		audit:  NewAuditStorage(db, logger),
		logger: logger,
	}

	logger.Debug().Msg("Badger storage manager initialized")

	return manager, nil
}

// CacheStorage returns the violation cache storage
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// AuditStorage returns the run history storage
func (m *Manager) AuditStorage() interfaces.AuditStorage {
	return m.audit
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
