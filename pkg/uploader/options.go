package uploader

import (
	"encoding/json"
	"time"

	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
)

// Token is the client-side view of an upload session handle. The token
// string itself is opaque; the surrounding fields let a task rebuild its
// chunk plan after restart. Tokens are persisted as JSON inside the
// progress record.
type Token struct {
	Token     string `json:"token"`
	ChunkSize int64  `json:"chunkSize"`
	ExpiresAt int64  `json:"expiresAt,omitempty"` // epoch ms, informational
}

// Encode serializes the token for persistence.
func (t Token) Encode() string {
	data, _ := json.Marshal(t)
	return string(data)
}

// DecodeToken parses a persisted token blob.
func DecodeToken(s string) (Token, error) {
	var t Token
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// ResumeState seeds a task constructed from a persisted record: the task
// reuses the existing ID, skips session creation by reusing the token,
// and excludes the already-uploaded indices from scheduling.
type ResumeState struct {
	TaskID         string
	Token          Token
	UploadedChunks []int
}

// TaskOptions configures a single upload task.
type TaskOptions struct {
	// ChunkSize is the preferred chunk size sent to the server, which
	// may override it. Defaults to protocol.DefaultChunkSize.
	ChunkSize int64

	// Concurrency bounds parallel chunk uploads. Defaults to
	// protocol.DefaultConcurrency, clamped to the protocol range.
	Concurrency int

	// RetryCount is the number of retries per chunk after the first
	// attempt. Defaults to protocol.DefaultRetryCount; negative values
	// disable retries.
	RetryCount int

	// RetryDelay is the exponential backoff base: retry n sleeps
	// RetryDelay * 2^n. Defaults to protocol.DefaultRetryDelay ms.
	RetryDelay time.Duration

	// VerifyWait optionally delays the first chunk submission, giving
	// the parallel hash a chance to prove instant upload for small
	// files. Zero starts uploading immediately.
	VerifyWait time.Duration

	// Resume seeds the task from a persisted record.
	Resume *ResumeState
}

// withDefaults normalizes zero values to the protocol defaults.
func (o TaskOptions) withDefaults() TaskOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = protocol.DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = protocol.DefaultConcurrency
	}
	if o.Concurrency < protocol.MinConcurrency {
		o.Concurrency = protocol.MinConcurrency
	}
	if o.Concurrency > protocol.MaxConcurrency {
		o.Concurrency = protocol.MaxConcurrency
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	} else if o.RetryCount == 0 {
		o.RetryCount = protocol.DefaultRetryCount
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = protocol.DefaultRetryDelay * time.Millisecond
	}
	return o
}
