package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/storage/badger"
	"github.com/ternarybob/canon/internal/storage/jsonfile"
)

// NewStorageManager opens the Badger store under the project root. It holds
// the audit history and, when selected, the violation cache.
func NewStorageManager(logger arbor.ILogger, config *common.Config, root string) (interfaces.StorageManager, error) {
	badgerConfig := config.Storage.Badger
	badgerConfig.Path = config.Resolve(root, badgerConfig.Path)
	return badger.NewManager(logger, &badgerConfig)
}

// NewCacheStorage returns the violation cache backend selected by
// [cache].backend. manager may be nil for the file backend.
func NewCacheStorage(logger arbor.ILogger, config *common.Config, root string, manager interfaces.StorageManager) (interfaces.CacheStorage, error) {
	switch config.Cache.Backend {
	case "", "file":
		return jsonfile.NewCacheStorage(config.Resolve(root, config.Cache.Path), logger), nil
	case "badger":
		if manager == nil {
			return nil, fmt.Errorf("cache backend badger requires the storage manager")
		}
		return manager.CacheStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s (want file or badger)", config.Cache.Backend)
	}
}
