package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
	"github.com/markdave123-py/knowledgevault/internal/services"
)

// DocumentManager is the document service as seen by the HTTP layer.
type DocumentManager interface {
	List(ctx context.Context, userID string) ([]models.FileEntry, error)
	RequestUpload(ctx context.Context, userID string, req services.UploadRequest) (*models.UploadTicket, error)
	Delete(ctx context.Context, userID, filename string) error
	Reindex(ctx context.Context, userID, filename string) (string, error)
}

type DocumentHandler struct {
	docs DocumentManager
	log  *logger.Logger
}

func NewDocumentHandler(docs DocumentManager, log *logger.Logger) *DocumentHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &DocumentHandler{docs: docs, log: log}
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	files, err := h.docs.List(r.Context(), id.Subject)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// RequestUpload returns a presigned URL; the client PUTs the file directly to storage.
func (h *DocumentHandler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	ticket, err := h.docs.RequestUpload(r.Context(), id.Subject, req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.docs.Delete(r.Context(), id.Subject, r.URL.Query().Get("filename")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	key, err := h.docs.Reindex(r.Context(), id.Subject, r.URL.Query().Get("filename"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"key": key, "status": models.StatusProcessing})
}
