package badger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// gcDiscardRatio is the value-log discard ratio used when closing
const gcDiscardRatio = 0.5

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens the database at config.Path, which must already be
// resolved against the project root. Only one process can hold the
// directory; a second opener fails.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// History and cache are small: keep one version per key and let
	// badger's own logger stay silent in favour of arbor
	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(config.Path).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)

	store, err := badgerhold.Open(options)
	if err != nil {
		logger.Error().Err(err).Str("path", config.Path).Msg("Failed to open history database")
		return nil, fmt.Errorf("failed to open badger database %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", filepath.Clean(config.Path)).Msg("History database opened")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close reclaims value-log space and closes the database
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}

	for {
		err := b.store.Badger().RunValueLogGC(gcDiscardRatio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			b.logger.Debug().Err(err).Msg("Value log GC skipped")
		}
		break
	}

	err := b.store.Close()
	b.store = nil
	return err
}
