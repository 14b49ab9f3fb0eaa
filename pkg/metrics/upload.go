// Package metrics defines the observability interfaces for the upload
// server. Implementations live in subpackages; passing nil disables
// collection with zero overhead.
package metrics

import "time"

// UploadMetrics collects measurements from the upload API and the
// merge pipeline.
//
// This interface is optional - pass nil to disable metrics collection
// with zero overhead.
type UploadMetrics interface {
	// RecordRequest records a completed API request with its operation
	// name (route pattern), duration, and HTTP status code.
	RecordRequest(operation string, duration time.Duration, status int)

	// RecordChunkReceived records a chunk accepted into the blob store.
	RecordChunkReceived(bytes int64)

	// RecordChunkRejected records a chunk refused for an integrity
	// mismatch between declared and actual digest.
	RecordChunkRejected()

	// RecordInstantUpload records a verify call answered by an existing
	// file manifest, skipping the transfer entirely.
	RecordInstantUpload()

	// RecordFileMerged records a completed logical merge.
	RecordFileMerged(chunks int, bytes int64)

	// RecordBytesStreamed records bytes served from ranged or full
	// file reads.
	RecordBytesStreamed(bytes int64)
}

// RecordRequest records a completed API request if m is non-nil.
func RecordRequest(m UploadMetrics, operation string, duration time.Duration, status int) {
	if m != nil {
		m.RecordRequest(operation, duration, status)
	}
}

// RecordChunkReceived records an accepted chunk if m is non-nil.
func RecordChunkReceived(m UploadMetrics, bytes int64) {
	if m != nil {
		m.RecordChunkReceived(bytes)
	}
}

// RecordChunkRejected records a refused chunk if m is non-nil.
func RecordChunkRejected(m UploadMetrics) {
	if m != nil {
		m.RecordChunkRejected()
	}
}

// RecordInstantUpload records a deduplicated upload if m is non-nil.
func RecordInstantUpload(m UploadMetrics) {
	if m != nil {
		m.RecordInstantUpload()
	}
}

// RecordFileMerged records a completed merge if m is non-nil.
func RecordFileMerged(m UploadMetrics, chunks int, bytes int64) {
	if m != nil {
		m.RecordFileMerged(chunks, bytes)
	}
}

// RecordBytesStreamed records served bytes if m is non-nil.
func RecordBytesStreamed(m UploadMetrics, bytes int64) {
	if m != nil {
		m.RecordBytesStreamed(bytes)
	}
}
