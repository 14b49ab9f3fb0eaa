// Package blob provides the content-addressed chunk store interface.
//
// Every chunk is stored exactly once under its content digest, so the
// same bytes uploaded by any number of files occupy storage once. Blobs
// are immutable: a Put for an existing digest is a no-op.
package blob

import (
	"context"
	"errors"
)

// Common errors returned by Store implementations.
var (
	// ErrBlobNotFound is returned when no blob exists for the digest.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrStoreClosed is returned when operations are attempted on a
	// closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Store defines the interface for content-addressed chunk storage.
//
// Keys are 32-character lowercase hex content digests. Implementations
// must be safe for concurrent use; concurrent Puts of the same digest
// carry identical bytes by construction, so last-write-wins is correct.
type Store interface {
	// Put stores data under its digest. Storing an already-present
	// digest is a cheap no-op.
	Put(ctx context.Context, hash string, data []byte) error

	// Get reads the complete blob.
	// Returns ErrBlobNotFound if no blob exists for the digest.
	Get(ctx context.Context, hash string) ([]byte, error)

	// GetRange reads length bytes starting at offset. Reads past the
	// end of the blob are truncated, not an error.
	GetRange(ctx context.Context, hash string, offset, length int64) ([]byte, error)

	// Has reports whether a blob exists for the digest.
	Has(ctx context.Context, hash string) (bool, error)

	// Size returns the byte length of the blob.
	// Returns ErrBlobNotFound if no blob exists for the digest.
	Size(ctx context.Context, hash string) (int64, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, hash string) error

	// Close releases any resources held by the store.
	Close() error

	// HealthCheck verifies the store is accessible and operational.
	HealthCheck(ctx context.Context) error
}
