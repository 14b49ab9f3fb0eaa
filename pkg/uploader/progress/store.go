// Package progress defines the persistent progress store for in-flight
// uploads. One record per task survives process restart; everything else
// about a task is reconstructable from the record plus a re-selected
// file.
package progress

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	// ErrRecordNotFound indicates no record exists for the task ID.
	ErrRecordNotFound = errors.New("record not found")

	// ErrQuotaExceeded indicates the backing store is out of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrStorageUnavailable indicates the backing store cannot be
	// reached. All write operations fail with this error; the upload
	// manager degrades to in-memory operation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrOperationFailed indicates a store operation failed for a reason
	// other than quota or availability.
	ErrOperationFailed = errors.New("store operation failed")
)

// Record is the persisted state of one in-flight upload. TaskID is
// immutable; UpdatedAt is stamped automatically on every update.
type Record struct {
	TaskID         string    `json:"taskId"`
	FileName       string    `json:"fileName"`
	FileSize       int64     `json:"fileSize"`
	FileType       string    `json:"fileType"`
	LastModified   int64     `json:"lastModified"` // epoch ms
	UploadedChunks []int     `json:"uploadedChunks"`
	UploadToken    string    `json:"uploadToken"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Patch is a partial record update. Nil fields are left unchanged;
// UpdateRecord merges the patch read-modify-write.
type Patch struct {
	UploadedChunks []int
	UploadToken    *string
	LastModified   *int64
}

// Store is the key/value progress store keyed by task ID.
//
// Implementations must serialize writes per task ID so concurrent
// read-modify-write updates do not lose fields.
type Store interface {
	// Init prepares the store for use.
	Init(ctx context.Context) error

	// SaveRecord stores a record, overwriting any existing one with the
	// same TaskID.
	SaveRecord(ctx context.Context, record *Record) error

	// GetRecord returns the record for taskID, or ErrRecordNotFound.
	GetRecord(ctx context.Context, taskID string) (*Record, error)

	// UpdateRecord applies a patch to the stored record, preserving
	// fields absent from the patch and stamping UpdatedAt.
	UpdateRecord(ctx context.Context, taskID string, patch Patch) error

	// DeleteRecord removes the record. Deleting a missing record is not
	// an error.
	DeleteRecord(ctx context.Context, taskID string) error

	// GetAllRecords returns every stored record.
	GetAllRecords(ctx context.Context) ([]*Record, error)

	// ClearAll removes every record.
	ClearAll(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// ApplyPatch merges patch into record and stamps UpdatedAt. Shared by
// implementations so patch semantics stay identical across backends.
func ApplyPatch(record *Record, patch Patch) {
	if patch.UploadedChunks != nil {
		record.UploadedChunks = append([]int(nil), patch.UploadedChunks...)
	}
	if patch.UploadToken != nil {
		record.UploadToken = *patch.UploadToken
	}
	if patch.LastModified != nil {
		record.LastModified = *patch.LastModified
	}
	record.UpdatedAt = time.Now().UTC()
}
