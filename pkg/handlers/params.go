package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseUUIDPathValue extracts and validates a UUID path parameter. Writes a
// 400 response and returns false on a malformed value.
func ParseUUIDPathValue(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (uuid.UUID, bool) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Debug("Invalid path parameter",
			zap.String("param", name),
			zap.String("value", raw))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_"+name, "invalid "+name); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError logs err and writes the mapped error response.
func writeServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
