package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/metrics"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/service"
)

// multipartMemoryLimit bounds how much of a chunk upload form is held in
// memory before spilling to disk. Slightly above the protocol chunk
// ceiling so a maximal chunk never spills.
const multipartMemoryLimit = protocol.MaxChunkSize + 64*1024

// uploadHandler serves the four upload operations and file reads.
type uploadHandler struct {
	svc     *service.Service
	metrics metrics.UploadMetrics
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns false if decoding fails (error response is written).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// createFile handles POST /upload/create.
func (h *uploadHandler) createFile(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	resp, err := h.svc.CreateFile(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// verifyHash handles POST /upload/verify.
func (h *uploadHandler) verifyHash(w http.ResponseWriter, r *http.Request) {
	var req protocol.VerifyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	resp, err := h.svc.VerifyHash(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if resp.FileExists {
		metrics.RecordInstantUpload(h.metrics)
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadChunk handles POST /upload/chunk. The chunk arrives as a
// multipart form: uploadToken, chunkIndex and chunkHash fields plus the
// bytes in a "chunk" file part.
func (h *uploadHandler) uploadChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk index")
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing chunk part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, protocol.MaxChunkSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read chunk")
		return
	}

	resp, err := h.svc.UploadChunk(r.Context(),
		r.FormValue("uploadToken"), chunkIndex, r.FormValue("chunkHash"), data)
	if err != nil {
		if errors.Is(err, service.ErrIntegrityMismatch) {
			metrics.RecordChunkRejected(h.metrics)
		}
		writeServiceError(w, err)
		return
	}

	metrics.RecordChunkReceived(h.metrics, int64(len(data)))
	writeJSON(w, http.StatusOK, resp)
}

// mergeFile handles POST /upload/merge.
func (h *uploadHandler) mergeFile(w http.ResponseWriter, r *http.Request) {
	var req protocol.MergeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	resp, err := h.svc.MergeFile(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if h.metrics != nil {
		if m, err := h.svc.GetFile(r.Context(), resp.FileID); err == nil {
			h.metrics.RecordFileMerged(len(m.ChunkHashes), m.FileSize)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// getFile handles GET /files/{fileId}. A valid Range header selects a
// single byte range and yields a 206; otherwise the whole file streams
// with a 200.
func (h *uploadHandler) getFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	m, err := h.svc.GetFile(r.Context(), fileID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	contentType := m.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": m.FileName}))

	offset, length := int64(0), m.FileSize
	status := http.StatusOK

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		var ok bool
		offset, length, ok = parseByteRange(rangeHeader, m.FileSize)
		if !ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", m.FileSize))
			writeError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
			return
		}
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, m.FileSize))
		status = http.StatusPartialContent
	}

	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || length == 0 {
		return
	}

	// Headers are out; a mid-stream failure can only be logged.
	cw := &countingWriter{w: w}
	if err := h.svc.StreamRange(r.Context(), fileID, offset, length, cw); err != nil {
		logger.Error("file stream aborted",
			logger.KeyFileID, fileID,
			"offset", offset,
			"length", length,
			logger.KeyError, err)
	}
	metrics.RecordBytesStreamed(h.metrics, cw.n)
}

// deleteFile handles DELETE /files/{fileId}. Chunks shared with other
// files survive; only the manifest goes.
func (h *uploadHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	if err := h.svc.DeleteFile(r.Context(), fileID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseByteRange parses a single-range "bytes=" header against the file
// size. Multi-range and syntactically malformed headers report !ok so
// the caller can answer 416; RFC 9110 would allow ignoring malformed
// headers, but rejecting keeps the failure visible to the client.
func parseByteRange(header string, size int64) (offset, length int64, ok bool) {
	// An empty file has no satisfiable byte range, including the suffix
	// form.
	if size <= 0 {
		return 0, 0, false
	}

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	start, end, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if start == "" {
		// Suffix form: last N bytes.
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, n, true
	}

	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil || offset < 0 || offset >= size {
		return 0, 0, false
	}

	if end == "" {
		return offset, size - offset, true
	}

	last, err := strconv.ParseInt(end, 10, 64)
	if err != nil || last < offset {
		return 0, 0, false
	}
	if last >= size {
		last = size - 1
	}
	return offset, last - offset + 1, true
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
