// Package badger provides a Badger-backed manifest store. Sessions and
// manifests are JSON values; the file-hash index is a small pointer key
// so instant-upload lookups stay O(1).
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/SajanLamichhane/chunkflow/pkg/store/manifest"
)

const (
	sessionPrefix  = "session/"
	manifestPrefix = "manifest/"
	fileHashPrefix = "filehash/"
)

// Store is a Badger-backed implementation of manifest.Store.
type Store struct {
	mu sync.RWMutex
	db *badger.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open manifest store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) database() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, manifest.ErrStoreClosed
	}
	return s.db, nil
}

func sessionKey(id string) []byte      { return []byte(sessionPrefix + id) }
func manifestKey(fileID string) []byte { return []byte(manifestPrefix + fileID) }
func fileHashKey(hash string) []byte   { return []byte(fileHashPrefix + hash) }

// getJSON reads and decodes one key inside txn.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// PutSession stores a session as JSON.
func (s *Store) PutSession(ctx context.Context, session *manifest.Session) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), data)
	})
}

// GetSession returns the session, or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*manifest.Session, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var session manifest.Session
	err = db.View(func(txn *badger.Txn) error {
		return getJSON(txn, sessionKey(id), &session)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, manifest.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes the session; missing sessions are not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// PutManifest stores the manifest and its file-hash index entry in one
// transaction, so a reader never sees the index without the manifest.
func (s *Store) PutManifest(ctx context.Context, m *manifest.Manifest) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(manifestKey(m.FileID), data); err != nil {
			return err
		}
		return txn.Set(fileHashKey(m.FileHash), []byte(m.FileID))
	})
}

// GetManifest returns the manifest for a file ID.
func (s *Store) GetManifest(ctx context.Context, fileID string) (*manifest.Manifest, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var m manifest.Manifest
	err = db.View(func(txn *badger.Txn) error {
		return getJSON(txn, manifestKey(fileID), &m)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, manifest.ErrManifestNotFound
		}
		return nil, fmt.Errorf("get manifest: %w", err)
	}
	return &m, nil
}

// FindByFileHash resolves the file-hash index then loads the manifest.
func (s *Store) FindByFileHash(ctx context.Context, fileHash string) (*manifest.Manifest, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var m manifest.Manifest
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileHashKey(fileHash))
		if err != nil {
			return err
		}
		var fileID string
		if err := item.Value(func(val []byte) error {
			fileID = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, manifestKey(fileID), &m)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, manifest.ErrManifestNotFound
		}
		return nil, fmt.Errorf("find manifest by hash: %w", err)
	}
	return &m, nil
}

// DeleteManifest removes the manifest and, when it still points at this
// file ID, the file-hash index entry.
func (s *Store) DeleteManifest(ctx context.Context, fileID string) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		var m manifest.Manifest
		if err := getJSON(txn, manifestKey(fileID), &m); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		item, err := txn.Get(fileHashKey(m.FileHash))
		if err == nil {
			var indexed string
			if err := item.Value(func(val []byte) error {
				indexed = string(val)
				return nil
			}); err != nil {
				return err
			}
			if indexed == fileID {
				if err := txn.Delete(fileHashKey(m.FileHash)); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		return txn.Delete(manifestKey(fileID))
	})
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

// Ensure Store implements manifest.Store.
var _ manifest.Store = (*Store)(nil)
