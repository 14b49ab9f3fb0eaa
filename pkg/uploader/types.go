// Package uploader implements the ChunkFlow client upload engine: per-file
// upload tasks with a strict state machine, parallel hashing and chunk
// upload, adaptive chunk sizing, bounded concurrency, persistent resume,
// and a multi-task manager with plugin fan-out.
package uploader

import (
	"errors"
	"io"
)

// Engine errors.
var (
	// ErrInvalidArgument indicates bad inputs to a constructor or API call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition indicates a task operation that is not legal in
	// the current status (e.g. pause on an idle task).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrQueueCleared is returned to work units discarded from the
	// limiter's pending queue before they started.
	ErrQueueCleared = errors.New("queue cleared")

	// ErrTaskNotFound indicates an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
)

// Status is the closed set of task states.
type Status int

const (
	StatusIdle Status = iota
	StatusHashing
	StatusUploading
	StatusPaused
	StatusSuccess
	StatusError
	StatusCancelled
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusHashing:
		return "hashing"
	case StatusUploading:
		return "uploading"
	case StatusPaused:
		return "paused"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// File describes the file a task uploads. The engine never copies the
// content; Reader provides random-access byte views for slicing.
type File struct {
	Name         string
	Size         int64
	Type         string // MIME type, possibly empty
	LastModified int64  // epoch milliseconds, informational
	Reader       io.ReaderAt
}

// ChunkInfo is one entry of a task's dense chunk plan. Within a plan,
// chunks tile the file exactly: chunk 0 starts at 0, each chunk starts
// where the previous one ends, and the last chunk ends at the file size.
type ChunkInfo struct {
	Index int
	Hash  string // 32-hex, set once computed
	Start int64
	End   int64 // exclusive
}

// Size returns the chunk length in bytes.
func (c ChunkInfo) Size() int64 {
	return c.End - c.Start
}

// buildChunkPlan slices fileSize into a dense chunk plan of chunkSize
// byte ranges. A zero-byte file yields a single empty chunk so the
// protocol flow (hash, upload, merge) stays uniform.
func buildChunkPlan(fileSize, chunkSize int64) []ChunkInfo {
	if fileSize == 0 {
		return []ChunkInfo{{Index: 0, Start: 0, End: 0}}
	}

	count := int((fileSize + chunkSize - 1) / chunkSize)
	chunks := make([]ChunkInfo, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * chunkSize
		end := min(start+chunkSize, fileSize)
		chunks = append(chunks, ChunkInfo{Index: i, Start: start, End: end})
	}
	return chunks
}
