// Package memory provides an in-memory blob store for testing.
package memory

import (
	"context"
	"sync"

	"github.com/SajanLamichhane/chunkflow/pkg/store/blob"
)

// Store is an in-memory implementation of blob.Store.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// New creates a new in-memory blob store.
func New() *Store {
	return &Store{
		blobs: make(map[string][]byte),
	}
}

// Put stores data under its digest.
func (s *Store) Put(ctx context.Context, hash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blob.ErrStoreClosed
	}
	if _, ok := s.blobs[hash]; ok {
		return nil
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.blobs[hash] = copied
	return nil
}

// Get reads the complete blob.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blob.ErrStoreClosed
	}
	data, ok := s.blobs[hash]
	if !ok {
		return nil, blob.ErrBlobNotFound
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// GetRange reads a byte range from a blob.
func (s *Store) GetRange(ctx context.Context, hash string, offset, length int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blob.ErrStoreClosed
	}
	data, ok := s.blobs[hash]
	if !ok {
		return nil, blob.ErrBlobNotFound
	}

	if offset < 0 || offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := min(offset+length, int64(len(data)))

	result := make([]byte, end-offset)
	copy(result, data[offset:end])
	return result, nil
}

// Has reports whether a blob exists for the digest.
func (s *Store) Has(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, blob.ErrStoreClosed
	}
	_, ok := s.blobs[hash]
	return ok, nil
}

// Size returns the byte length of the blob.
func (s *Store) Size(ctx context.Context, hash string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, blob.ErrStoreClosed
	}
	data, ok := s.blobs[hash]
	if !ok {
		return 0, blob.ErrBlobNotFound
	}
	return int64(len(data)), nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blob.ErrStoreClosed
	}
	delete(s.blobs, hash)
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.blobs = nil
	return nil
}

// HealthCheck verifies the store is operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blob.ErrStoreClosed
	}
	return nil
}

// BlobCount returns the number of blobs stored (for testing).
func (s *Store) BlobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// TotalSize returns the total size of all blobs stored (for testing).
func (s *Store) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, data := range s.blobs {
		total += int64(len(data))
	}
	return total
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)
