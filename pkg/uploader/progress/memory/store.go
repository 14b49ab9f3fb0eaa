// Package memory provides an in-memory progress store. It backs tests
// and the manager's degraded mode when the persistent store is
// unavailable; records do not survive restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SajanLamichhane/chunkflow/pkg/uploader/progress"
)

// Store is an in-memory implementation of progress.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*progress.Record
	closed  bool
}

// New creates an empty in-memory progress store.
func New() *Store {
	return &Store{records: make(map[string]*progress.Record)}
}

// Init implements progress.Store.
func (s *Store) Init(ctx context.Context) error {
	return nil
}

// SaveRecord stores a copy of the record.
func (s *Store) SaveRecord(ctx context.Context, record *progress.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return progress.ErrStorageUnavailable
	}

	clone := *record
	clone.UploadedChunks = append([]int(nil), record.UploadedChunks...)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	s.records[record.TaskID] = &clone
	return nil
}

// GetRecord returns a copy of the stored record.
func (s *Store) GetRecord(ctx context.Context, taskID string) (*progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, progress.ErrStorageUnavailable
	}

	record, ok := s.records[taskID]
	if !ok {
		return nil, progress.ErrRecordNotFound
	}

	clone := *record
	clone.UploadedChunks = append([]int(nil), record.UploadedChunks...)
	return &clone, nil
}

// UpdateRecord applies the patch read-modify-write under the store lock.
func (s *Store) UpdateRecord(ctx context.Context, taskID string, patch progress.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return progress.ErrStorageUnavailable
	}

	record, ok := s.records[taskID]
	if !ok {
		return progress.ErrRecordNotFound
	}

	progress.ApplyPatch(record, patch)
	return nil
}

// DeleteRecord removes the record; missing records are not an error.
func (s *Store) DeleteRecord(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return progress.ErrStorageUnavailable
	}

	delete(s.records, taskID)
	return nil
}

// GetAllRecords returns copies of every stored record.
func (s *Store) GetAllRecords(ctx context.Context) ([]*progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, progress.ErrStorageUnavailable
	}

	records := make([]*progress.Record, 0, len(s.records))
	for _, record := range s.records {
		clone := *record
		clone.UploadedChunks = append([]int(nil), record.UploadedChunks...)
		records = append(records, &clone)
	}
	return records, nil
}

// ClearAll removes every record.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return progress.ErrStorageUnavailable
	}

	s.records = make(map[string]*progress.Record)
	return nil
}

// Close marks the store closed; subsequent operations fail with
// ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}
