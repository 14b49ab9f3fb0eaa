package uploader

import (
	"context"

	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
)

// RequestAdapter is the capability the engine uses to reach the server.
// Implementations own transport-level concerns: serialization, timeouts,
// TLS, authentication, and transport retries. The engine layers its own
// application-level retry on UploadChunk only.
//
// All four calls are idempotent on identical inputs.
type RequestAdapter interface {
	// CreateFile opens an upload session and negotiates the chunk size.
	CreateFile(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error)

	// VerifyHash asks whether the full file (by FileHash) or individual
	// chunks (by ChunkHashes) already exist on the server.
	VerifyHash(ctx context.Context, req protocol.VerifyRequest) (*protocol.VerifyResponse, error)

	// UploadChunk delivers one chunk's bytes. The server validates that
	// the bytes hash to chunkHash.
	UploadChunk(ctx context.Context, uploadToken string, chunkIndex int, chunkHash string, data []byte) (*protocol.ChunkResponse, error)

	// MergeFile assembles the file logically from its ordered chunk
	// hashes. No bytes are copied.
	MergeFile(ctx context.Context, req protocol.MergeRequest) (*protocol.MergeResponse, error)
}
