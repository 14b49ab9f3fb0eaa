// Package badger provides a Badger-backed progress store. Records are
// stored as JSON values under a per-task key and survive process
// restart, which is what makes crash resume possible.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
)

const recordPrefix = "record/"

// Store is a Badger-backed implementation of progress.Store.
type Store struct {
	mu   sync.RWMutex
	path string
	db   *badger.DB
}

// New creates a store rooted at path. Call Init before use.
func New(path string) *Store {
	return &Store{path: path}
}

// Init opens the Badger database. A store that fails to open reports
// ErrStorageUnavailable from every subsequent operation.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	opts := badger.DefaultOptions(s.path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("%w: %v", progress.ErrStorageUnavailable, err)
	}
	s.db = db
	return nil
}

func (s *Store) database() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, progress.ErrStorageUnavailable
	}
	return s.db, nil
}

func recordKey(taskID string) []byte {
	return []byte(recordPrefix + taskID)
}

// classify maps Badger failures onto the store error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return progress.ErrRecordNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return progress.ErrStorageUnavailable
	case strings.Contains(err.Error(), "no space"):
		return fmt.Errorf("%w: %v", progress.ErrQuotaExceeded, err)
	default:
		return fmt.Errorf("%w: %v", progress.ErrOperationFailed, err)
	}
}

// SaveRecord stores the record as JSON.
func (s *Store) SaveRecord(ctx context.Context, record *progress.Record) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", progress.ErrOperationFailed, err)
	}

	return classify(db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(record.TaskID), data)
	}))
}

// GetRecord returns the record for taskID, or ErrRecordNotFound.
func (s *Store) GetRecord(ctx context.Context, taskID string) (*progress.Record, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var record *progress.Record
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(taskID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record = &progress.Record{}
			return json.Unmarshal(val, record)
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	return record, nil
}

// UpdateRecord applies the patch inside a single transaction so the
// read-modify-write is atomic per task ID.
func (s *Store) UpdateRecord(ctx context.Context, taskID string, patch progress.Patch) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return classify(db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(taskID))
		if err != nil {
			return err
		}

		var record progress.Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		progress.ApplyPatch(&record, patch)

		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		return txn.Set(recordKey(taskID), data)
	}))
}

// DeleteRecord removes the record; missing records are not an error.
func (s *Store) DeleteRecord(ctx context.Context, taskID string) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return classify(db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(taskID))
	}))
}

// GetAllRecords iterates every record key.
func (s *Store) GetAllRecords(ctx context.Context) ([]*progress.Record, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var records []*progress.Record
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				record := &progress.Record{}
				if err := json.Unmarshal(val, record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

// ClearAll drops every record key.
func (s *Store) ClearAll(ctx context.Context) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return classify(db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
