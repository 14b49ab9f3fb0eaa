// Package protocol defines the wire contract between the ChunkFlow upload
// engine and the server: the four upload operations (create, verify,
// uploadChunk, merge), their request/response bodies, and the protocol
// limits both sides agree on.
package protocol

import "regexp"

// Protocol limits. The server clamps negotiated chunk sizes to
// [MinChunkSize, MaxChunkSize]; the client engine defaults to
// DefaultChunkSize and DefaultConcurrency.
const (
	MinChunkSize     = 256 * 1024       // 256 KiB
	MaxChunkSize     = 10 * 1024 * 1024 // 10 MiB
	DefaultChunkSize = 1024 * 1024      // 1 MiB

	DefaultTargetTime = 3000 // ms, chunk-size adjustment target

	DefaultConcurrency = 3
	MinConcurrency     = 1
	MaxConcurrency     = 10

	DefaultRetryCount = 3
	DefaultRetryDelay = 1000 // ms, exponential backoff base

	// HashLength is the length of a content digest in hex characters.
	HashLength = 32
)

// hashPattern matches a 32-character lowercase hex digest.
var hashPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ValidHash reports whether s is a well-formed content digest.
func ValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

// CreateRequest is the body of POST /upload/create.
type CreateRequest struct {
	FileName           string `json:"fileName"`
	FileSize           int64  `json:"fileSize"`
	FileType           string `json:"fileType"`
	PreferredChunkSize int64  `json:"preferredChunkSize,omitempty"`
}

// CreateResponse is the server's answer to a create request. The server
// may override the preferred chunk size; the negotiated size is the one
// the client must use for the whole task plan.
type CreateResponse struct {
	UploadToken        string `json:"uploadToken"`
	NegotiatedChunkSize int64 `json:"negotiatedChunkSize"`
}

// VerifyRequest is the body of POST /upload/verify. FileHash asks
// whether the complete file already exists; ChunkHashes asks which of
// the listed chunks are already stored. Either field may be omitted.
type VerifyRequest struct {
	UploadToken string   `json:"uploadToken"`
	FileHash    string   `json:"fileHash,omitempty"`
	ChunkHashes []string `json:"chunkHashes,omitempty"`
}

// VerifyResponse reports instant-upload and dedup information.
// ExistingChunks and MissingChunks are index lists into the client's
// supplied ChunkHashes order; the server has no authoritative chunking.
type VerifyResponse struct {
	FileExists     bool   `json:"fileExists"`
	FileURL        string `json:"fileUrl,omitempty"`
	ExistingChunks []int  `json:"existingChunks"`
	MissingChunks  []int  `json:"missingChunks"`
}

// ChunkResponse is the server's answer to POST /upload/chunk.
type ChunkResponse struct {
	Success   bool   `json:"success"`
	ChunkHash string `json:"chunkHash"`
}

// MergeRequest is the body of POST /upload/merge. ChunkHashes must list
// every chunk digest in file order; the merge is logical only.
type MergeRequest struct {
	UploadToken string   `json:"uploadToken"`
	FileHash    string   `json:"fileHash"`
	ChunkHashes []string `json:"chunkHashes"`
}

// MergeResponse is the server's answer to a merge request.
type MergeResponse struct {
	Success bool   `json:"success"`
	FileURL string `json:"fileUrl"`
	FileID  string `json:"fileId"`
}

// ErrorResponse is the body returned by the upload endpoints on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
