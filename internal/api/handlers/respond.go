package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	middleware "github.com/markdave123-py/knowledgevault/internal/api/middlewares"
	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/ingestion_engine"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to status codes. Only caller errors echo their message;
// everything else is logged and reported generically.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrQuotaExceeded):
		writeMessage(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "File not found")
	case errors.Is(err, ingestion_engine.ErrQueueFull):
		writeMessage(w, http.StatusServiceUnavailable, "Indexing queue is busy, try again shortly.")
	default:
		log.Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}
