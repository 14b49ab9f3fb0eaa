// Package service implements the server side of the upload protocol:
// session creation, hash verification for instant upload and chunk
// dedup, integrity-checked chunk ingestion, logical merge, and ranged
// file streaming over the content-addressed chunk store.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/digest"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/store/blob"
	"github.com/SajanLamichhane/chunkflow/pkg/store/manifest"
)

// Service errors.
var (
	// ErrInvalidRequest indicates a malformed request body or field.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidHash indicates a digest that is not 32 lowercase hex
	// characters.
	ErrInvalidHash = errors.New("invalid content hash")

	// ErrIntegrityMismatch indicates chunk bytes that do not hash to the
	// declared digest. The chunk is rejected and not stored.
	ErrIntegrityMismatch = errors.New("chunk integrity mismatch")

	// ErrChunkMissing indicates a merge that references a chunk the
	// store does not hold.
	ErrChunkMissing = errors.New("referenced chunk not stored")

	// ErrSizeMismatch indicates merged chunks whose total size differs
	// from the size declared at session creation.
	ErrSizeMismatch = errors.New("merged size does not match declared file size")

	// ErrFileNotFound indicates an unknown file ID.
	ErrFileNotFound = errors.New("file not found")

	// ErrRangeNotSatisfiable indicates a read range outside the file.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// Service coordinates the blob store, the manifest store and the token
// service to implement the upload protocol.
type Service struct {
	blobs     blob.Store
	manifests manifest.Store
	tokens    *TokenService
}

// New creates a service over the given stores.
func New(blobs blob.Store, manifests manifest.Store, tokens *TokenService) (*Service, error) {
	if blobs == nil || manifests == nil || tokens == nil {
		return nil, fmt.Errorf("%w: nil store or token service", ErrInvalidRequest)
	}
	return &Service{blobs: blobs, manifests: manifests, tokens: tokens}, nil
}

// clampChunkSize forces a preferred chunk size into the protocol range,
// defaulting when the client expressed no preference.
func clampChunkSize(preferred int64) int64 {
	switch {
	case preferred <= 0:
		return protocol.DefaultChunkSize
	case preferred < protocol.MinChunkSize:
		return protocol.MinChunkSize
	case preferred > protocol.MaxChunkSize:
		return protocol.MaxChunkSize
	default:
		return preferred
	}
}

// CreateFile opens an upload session and negotiates the chunk size.
func (s *Service) CreateFile(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	if req.FileName == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidRequest)
	}
	if req.FileSize < 0 {
		return nil, fmt.Errorf("%w: negative file size", ErrInvalidRequest)
	}

	session := &manifest.Session{
		ID:        uuid.NewString(),
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		FileType:  req.FileType,
		ChunkSize: clampChunkSize(req.PreferredChunkSize),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.manifests.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	token, _, err := s.tokens.Issue(session.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("upload session created",
		"sessionId", session.ID,
		"fileName", session.FileName,
		"fileSize", session.FileSize,
		"chunkSize", session.ChunkSize)

	return &protocol.CreateResponse{
		UploadToken:         token,
		NegotiatedChunkSize: session.ChunkSize,
	}, nil
}

// VerifyHash answers two dedup questions in one call: does the whole
// file already exist, and which of the listed chunks are already stored.
// Index lists refer to positions in the caller's ChunkHashes slice.
func (s *Service) VerifyHash(ctx context.Context, req protocol.VerifyRequest) (*protocol.VerifyResponse, error) {
	if _, err := s.tokens.Validate(req.UploadToken); err != nil {
		return nil, err
	}

	resp := &protocol.VerifyResponse{
		ExistingChunks: []int{},
		MissingChunks:  []int{},
	}

	if req.FileHash != "" {
		if !protocol.ValidHash(req.FileHash) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHash, req.FileHash)
		}
		m, err := s.manifests.FindByFileHash(ctx, req.FileHash)
		switch {
		case err == nil:
			resp.FileExists = true
			resp.FileURL = fileURL(m.FileID)
			return resp, nil
		case errors.Is(err, manifest.ErrManifestNotFound):
			// Fall through to chunk checks.
		default:
			return nil, fmt.Errorf("find by file hash: %w", err)
		}
	}

	for i, hash := range req.ChunkHashes {
		if !protocol.ValidHash(hash) {
			return nil, fmt.Errorf("%w: chunk %d: %q", ErrInvalidHash, i, hash)
		}
		ok, err := s.blobs.Has(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("check chunk %d: %w", i, err)
		}
		if ok {
			resp.ExistingChunks = append(resp.ExistingChunks, i)
		} else {
			resp.MissingChunks = append(resp.MissingChunks, i)
		}
	}
	return resp, nil
}

// UploadChunk verifies the declared digest against the received bytes
// and stores the chunk. Re-uploading a stored chunk is an idempotent
// success.
func (s *Service) UploadChunk(ctx context.Context, uploadToken string, chunkIndex int, chunkHash string, data []byte) (*protocol.ChunkResponse, error) {
	sessionID, err := s.tokens.Validate(uploadToken)
	if err != nil {
		return nil, err
	}
	if chunkIndex < 0 {
		return nil, fmt.Errorf("%w: negative chunk index", ErrInvalidRequest)
	}
	if !protocol.ValidHash(chunkHash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, chunkHash)
	}
	if int64(len(data)) > protocol.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk exceeds %d bytes", ErrInvalidRequest, protocol.MaxChunkSize)
	}

	if actual := digest.Sum(data); actual != chunkHash {
		logger.Warn("chunk integrity mismatch",
			"sessionId", sessionID,
			logger.KeyChunkIndex, chunkIndex,
			logger.KeyChunkHash, chunkHash,
			"actualHash", actual)
		return nil, fmt.Errorf("%w: declared %s, got %s", ErrIntegrityMismatch, chunkHash, actual)
	}

	if err := s.blobs.Put(ctx, chunkHash, data); err != nil {
		return nil, fmt.Errorf("store chunk: %w", err)
	}

	return &protocol.ChunkResponse{Success: true, ChunkHash: chunkHash}, nil
}

// MergeFile assembles a logical file from its ordered chunk digests.
// Every referenced chunk must already be stored; no bytes are copied.
// The session is consumed on success.
func (s *Service) MergeFile(ctx context.Context, req protocol.MergeRequest) (*protocol.MergeResponse, error) {
	sessionID, err := s.tokens.Validate(req.UploadToken)
	if err != nil {
		return nil, err
	}

	session, err := s.manifests.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !protocol.ValidHash(req.FileHash) {
		return nil, fmt.Errorf("%w: file hash %q", ErrInvalidHash, req.FileHash)
	}
	if len(req.ChunkHashes) == 0 {
		return nil, fmt.Errorf("%w: merge requires at least one chunk", ErrInvalidRequest)
	}

	sizes := make([]int64, len(req.ChunkHashes))
	var total int64
	for i, hash := range req.ChunkHashes {
		if !protocol.ValidHash(hash) {
			return nil, fmt.Errorf("%w: chunk %d: %q", ErrInvalidHash, i, hash)
		}
		size, err := s.blobs.Size(ctx, hash)
		if err != nil {
			if errors.Is(err, blob.ErrBlobNotFound) {
				return nil, fmt.Errorf("%w: chunk %d (%s)", ErrChunkMissing, i, hash)
			}
			return nil, fmt.Errorf("stat chunk %d: %w", i, err)
		}
		sizes[i] = size
		total += size
	}

	if total != session.FileSize {
		return nil, fmt.Errorf("%w: declared %d, merged %d", ErrSizeMismatch, session.FileSize, total)
	}

	m := &manifest.Manifest{
		FileID:      uuid.NewString(),
		FileName:    session.FileName,
		FileSize:    session.FileSize,
		FileType:    session.FileType,
		FileHash:    req.FileHash,
		ChunkHashes: append([]string(nil), req.ChunkHashes...),
		ChunkSizes:  sizes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.manifests.PutManifest(ctx, m); err != nil {
		return nil, fmt.Errorf("store manifest: %w", err)
	}

	if err := s.manifests.DeleteSession(ctx, sessionID); err != nil {
		logger.Warn("failed to delete consumed session",
			"sessionId", sessionID, logger.KeyError, err)
	}

	logger.Info("file merged",
		logger.KeyFileID, m.FileID,
		"fileName", m.FileName,
		"chunks", len(m.ChunkHashes),
		"fileSize", m.FileSize)

	return &protocol.MergeResponse{
		Success: true,
		FileURL: fileURL(m.FileID),
		FileID:  m.FileID,
	}, nil
}

// GetFile returns the manifest for a file ID.
func (s *Service) GetFile(ctx context.Context, fileID string) (*manifest.Manifest, error) {
	m, err := s.manifests.GetManifest(ctx, fileID)
	if err != nil {
		if errors.Is(err, manifest.ErrManifestNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return nil, err
	}
	return m, nil
}

// StreamRange writes the byte range [offset, offset+length) of the file
// to w by reading only the chunks that overlap the range. A length < 0
// streams to the end of the file.
func (s *Service) StreamRange(ctx context.Context, fileID string, offset, length int64, w io.Writer) error {
	m, err := s.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	if offset < 0 || offset > m.FileSize {
		return fmt.Errorf("%w: offset %d of %d", ErrRangeNotSatisfiable, offset, m.FileSize)
	}
	if length < 0 || offset+length > m.FileSize {
		length = m.FileSize - offset
	}
	if length == 0 {
		return nil
	}

	// Walk the chunk plan, reading only the overlapping slices.
	var chunkStart int64
	remaining := length
	pos := offset
	for i, hash := range m.ChunkHashes {
		chunkEnd := chunkStart + m.ChunkSizes[i]
		if pos < chunkEnd {
			readOff := pos - chunkStart
			readLen := min(remaining, chunkEnd-pos)

			data, err := s.blobs.GetRange(ctx, hash, readOff, readLen)
			if err != nil {
				return fmt.Errorf("read chunk %d: %w", i, err)
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("write range: %w", err)
			}

			pos += readLen
			remaining -= readLen
			if remaining == 0 {
				return nil
			}
		}
		chunkStart = chunkEnd
	}

	if remaining > 0 {
		return fmt.Errorf("%w: %d bytes missing", ErrChunkMissing, remaining)
	}
	return nil
}

// DeleteFile removes the file's manifest. Chunks stay in the blob store
// because other manifests may reference them.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := s.GetFile(ctx, fileID); err != nil {
		return err
	}
	return s.manifests.DeleteManifest(ctx, fileID)
}

func fileURL(fileID string) string {
	return "/files/" + fileID
}
