package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// Chatter answers chat messages and reports usage.
type Chatter interface {
	Reply(ctx context.Context, id models.Identity, message string) (*models.ChatReply, error)
	Usage(ctx context.Context, id models.Identity) (models.Usage, error)
}

type ChatHandler struct {
	chat Chatter
	log  *logger.Logger
}

func NewChatHandler(chat Chatter, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatHandler{chat: chat, log: log}
}

type ChatRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "No body provided")
		return
	}

	reply, err := h.chat.Reply(r.Context(), id, req.Message)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *ChatHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	usage, err := h.chat.Usage(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
