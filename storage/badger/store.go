// Package badger provides a BadgerDB-backed IndexStore for documents
// whose id index outgrows the JSON sidecar.
package badger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/manifest/storage"
)

// indexPrefix namespaces id-index keys inside the database.
const indexPrefix = "sidx:"

// Store persists the id index in a BadgerDB database, one key per id.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ storage.IndexStore = (*Store)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenStore opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenStore(filePath string, inMemory bool, logger *slog.Logger) (storage.IndexStore, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// Load reads every indexed id from the database.
func (s *Store) Load() (map[string]string, error) {
	entries := make(map[string]string)
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			id := string(item.Key()[len(indexPrefix):])
			err := item.Value(func(val []byte) error {
				path, err := storage.UnmarshalPath(val)
				if err != nil {
					return err
				}
				entries[id] = path
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Save replaces the stored mapping: ids absent from entries are deleted,
// everything else is written.
func (s *Store) Save(entries map[string]string) error {
	return s.db.Update(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		var stale [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			if _, ok := entries[string(key[len(indexPrefix):])]; !ok {
				stale = append(stale, key)
			}
		}
		iter.Close()

		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for id, path := range entries {
			if err := tx.Set([]byte(indexPrefix+id), storage.MarshalPath(path)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}
