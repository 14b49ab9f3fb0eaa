// Package manifest defines the server-side metadata store: upload
// sessions opened by create, and file manifests written by merge.
//
// A manifest is a logical file: an ordered list of chunk digests plus
// file metadata. No file bytes live here; the chunks themselves are in
// the blob store, shared across every manifest that references them.
package manifest

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrSessionNotFound is returned when no session exists for the token.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrManifestNotFound is returned when no manifest exists for the
	// file ID or file hash.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrStoreClosed is returned when operations are attempted on a
	// closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Session is an open upload: created by the create operation, consumed
// by merge. The session records the negotiated chunk size so the server
// can sanity-check chunk payloads.
type Session struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	FileSize  int64     `json:"fileSize"`
	FileType  string    `json:"fileType"`
	ChunkSize int64     `json:"chunkSize"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manifest is a completed logical file. ChunkHashes lists the content
// digests in file order; ChunkSizes is index-aligned with it so ranged
// reads can locate chunk boundaries without consulting the blob store.
type Manifest struct {
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	FileType    string    `json:"fileType"`
	FileHash    string    `json:"fileHash"`
	ChunkHashes []string  `json:"chunkHashes"`
	ChunkSizes  []int64   `json:"chunkSizes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is the server metadata store.
//
// PutManifest also indexes the manifest by file hash, making instant
// upload a single lookup. When several manifests share a file hash the
// index keeps the most recent one; any of them serves, since equal file
// hashes mean equal content.
type Store interface {
	// PutSession stores an upload session keyed by its ID.
	PutSession(ctx context.Context, session *Session) error

	// GetSession returns the session, or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// DeleteSession removes the session. Missing sessions are not an
	// error.
	DeleteSession(ctx context.Context, id string) error

	// PutManifest stores a manifest and indexes it by file hash.
	PutManifest(ctx context.Context, m *Manifest) error

	// GetManifest returns the manifest for a file ID, or
	// ErrManifestNotFound.
	GetManifest(ctx context.Context, fileID string) (*Manifest, error)

	// FindByFileHash returns a manifest whose content digest matches,
	// or ErrManifestNotFound. This is the instant-upload lookup.
	FindByFileHash(ctx context.Context, fileHash string) (*Manifest, error)

	// DeleteManifest removes the manifest and its file-hash index entry.
	// Missing manifests are not an error.
	DeleteManifest(ctx context.Context, fileID string) error

	// Close releases store resources.
	Close() error
}
