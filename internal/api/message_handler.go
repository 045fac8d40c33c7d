package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/pkg/response"
)

// MessageHandler serves thread-addressed direct messages.
type MessageHandler struct {
	service *domain.MessageService
	logger  *zap.Logger
}

func NewMessageHandler(service *domain.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger,
	}
}

// Send handles POST /message
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "send message")
		return
	}

	msg, err := h.service.Send(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err, "send message")
		return
	}

	response.Created(w, msg)
}

// Reply handles POST /message/reply; the recipient comes from the thread id
func (h *MessageHandler) Reply(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req domain.ReplyRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "send reply")
		return
	}

	msg, err := h.service.Reply(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err, "send reply")
		return
	}

	response.Created(w, msg)
}

// Inbox handles GET /message/inbox?user=<id>
func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.Inbox(r.Context(), actor, r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, h.logger, err, "fetch inbox")
		return
	}

	response.OK(w, msgs)
}

// Thread handles GET /message/thread/{threadId}
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.Thread(r.Context(), actor, chi.URLParam(r, "threadId"))
	if err != nil {
		writeError(w, h.logger, err, "fetch thread")
		return
	}

	response.OK(w, msgs)
}
