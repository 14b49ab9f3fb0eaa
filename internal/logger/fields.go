package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so upload activity
// can be aggregated and queried per task, file, and chunk.
const (
	// Upload session
	KeyTaskID   = "task_id"   // Client-side task identifier
	KeyFileID   = "file_id"   // Server-assigned file identifier
	KeyFileName = "file_name" // Original file name
	KeyFileSize = "file_size" // Total file size in bytes
	KeyFileHash = "file_hash" // Full-file content digest (32 hex chars)
	KeyStatus   = "status"    // Task status: idle, uploading, paused, ...

	// Chunk transfer
	KeyChunkIndex = "chunk_index" // 0-based chunk index
	KeyChunkHash  = "chunk_hash"  // Chunk content digest
	KeyChunkSize  = "chunk_size"  // Chunk size in bytes
	KeyAttempt    = "attempt"     // Retry attempt number (0-based)

	// Progress
	KeyUploadedBytes = "uploaded_bytes" // Bytes acknowledged so far
	KeyPercentage    = "percentage"     // Completion percentage 0-100
	KeySpeed         = "speed"          // Upload speed in bytes/sec

	// HTTP / server
	KeyRequestID = "request_id" // chi request ID
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // Request path
	KeyDuration  = "duration"   // Operation duration

	// Errors
	KeyError = "error" // Error message
)
