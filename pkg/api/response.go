package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/protocol"
	"github.com/SajanLamichhane/chunkflow/pkg/service"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.KeyError, err)
	}
}

// writeError writes a protocol error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

// writeServiceError maps a service error onto an HTTP status and writes
// the protocol error body. Unrecognized errors become opaque 500s; their
// details go to the log, not the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidHash):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrIntegrityMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrChunkMissing), errors.Is(err, service.ErrSizeMismatch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRangeNotSatisfiable):
		writeError(w, http.StatusRequestedRangeNotSatisfiable, err.Error())
	default:
		logger.Error("internal error", logger.KeyError, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
