// Package memory provides an in-memory manifest store for testing and
// single-process deployments without persistence.
package memory

import (
	"context"
	"sync"

	"github.com/SajanLamichhane/chunkflow/pkg/store/manifest"
)

// Store is an in-memory implementation of manifest.Store.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*manifest.Session
	manifests  map[string]*manifest.Manifest
	byFileHash map[string]string // fileHash -> fileID
	closed     bool
}

// New creates a new in-memory manifest store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]*manifest.Session),
		manifests:  make(map[string]*manifest.Manifest),
		byFileHash: make(map[string]string),
	}
}

// PutSession stores a session.
func (s *Store) PutSession(ctx context.Context, session *manifest.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return manifest.ErrStoreClosed
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

// GetSession returns the session for id.
func (s *Store) GetSession(ctx context.Context, id string) (*manifest.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, manifest.ErrStoreClosed
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, manifest.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return manifest.ErrStoreClosed
	}
	delete(s.sessions, id)
	return nil
}

// PutManifest stores a manifest and indexes it by file hash.
func (s *Store) PutManifest(ctx context.Context, m *manifest.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return manifest.ErrStoreClosed
	}
	copied := cloneManifest(m)
	s.manifests[m.FileID] = copied
	s.byFileHash[m.FileHash] = m.FileID
	return nil
}

// GetManifest returns the manifest for a file ID.
func (s *Store) GetManifest(ctx context.Context, fileID string) (*manifest.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, manifest.ErrStoreClosed
	}
	m, ok := s.manifests[fileID]
	if !ok {
		return nil, manifest.ErrManifestNotFound
	}
	return cloneManifest(m), nil
}

// FindByFileHash returns a manifest matching the content digest.
func (s *Store) FindByFileHash(ctx context.Context, fileHash string) (*manifest.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, manifest.ErrStoreClosed
	}
	fileID, ok := s.byFileHash[fileHash]
	if !ok {
		return nil, manifest.ErrManifestNotFound
	}
	m, ok := s.manifests[fileID]
	if !ok {
		return nil, manifest.ErrManifestNotFound
	}
	return cloneManifest(m), nil
}

// DeleteManifest removes a manifest and its index entry.
func (s *Store) DeleteManifest(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return manifest.ErrStoreClosed
	}
	m, ok := s.manifests[fileID]
	if ok {
		if s.byFileHash[m.FileHash] == fileID {
			delete(s.byFileHash, m.FileHash)
		}
		delete(s.manifests, fileID)
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = nil
	s.manifests = nil
	s.byFileHash = nil
	return nil
}

func cloneManifest(m *manifest.Manifest) *manifest.Manifest {
	copied := *m
	copied.ChunkHashes = append([]string(nil), m.ChunkHashes...)
	copied.ChunkSizes = append([]int64(nil), m.ChunkSizes...)
	return &copied
}

// Ensure Store implements manifest.Store.
var _ manifest.Store = (*Store)(nil)
