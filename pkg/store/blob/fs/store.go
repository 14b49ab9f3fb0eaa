// Package fs provides a filesystem-backed blob store. Blobs live under a
// root directory, sharded by the first two hex characters of the digest
// so no single directory grows unbounded:
//
//	<root>/ab/abcdef0123456789abcdef0123456789
//
// Writes are crash-safe: bytes land in a temp file, are synced, and are
// renamed into place. A torn write never leaves a partial blob under a
// valid digest path.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/SajanLamichhane/chunkflow/pkg/store/blob"
)

// Store is a filesystem implementation of blob.Store.
type Store struct {
	root   string
	mu     sync.RWMutex
	closed bool
}

// New creates a blob store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: dir}, nil
}

// path returns the sharded on-disk path for a digest.
func (s *Store) path(hash string) string {
	return filepath.Join(s.root, hash[:2], hash)
}

// Put stores data under its digest via temp file and atomic rename.
func (s *Store) Put(ctx context.Context, hash string, data []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	target := s.path(hash)
	if _, err := os.Stat(target); err == nil {
		// Content-addressed: same digest means same bytes.
		return nil
	}

	shard := filepath.Dir(target)
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(shard, hash+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("publish blob: %w", err)
	}
	return nil
}

// Get reads the complete blob.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, blob.ErrBlobNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// GetRange reads length bytes starting at offset.
func (s *Store) GetRange(ctx context.Context, hash string, offset, length int64) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	f, err := os.Open(s.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, blob.ErrBlobNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if offset < 0 || offset >= info.Size() {
		return []byte{}, nil
	}
	end := min(offset+length, info.Size())

	result := make([]byte, end-offset)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, end-offset), result); err != nil {
		return nil, fmt.Errorf("read blob range: %w", err)
	}
	return result, nil
}

// Has reports whether a blob exists for the digest.
func (s *Store) Has(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false, blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	_, err := os.Stat(s.path(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob: %w", err)
}

// Size returns the byte length of the blob.
func (s *Store) Size(ctx context.Context, hash string) (int64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	info, err := os.Stat(s.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, blob.ErrBlobNotFound
		}
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, hash string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	if err := os.Remove(s.path(hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// HealthCheck verifies the root directory is accessible and writable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return blob.ErrStoreClosed
	}
	s.mu.RUnlock()

	probe, err := os.CreateTemp(s.root, ".health-*")
	if err != nil {
		return fmt.Errorf("blob root not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)
