package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/metrics"
	"github.com/tunehub/backend/pkg/response"
)

// ChatHandler serves realtime conversations over REST and WebSocket.
type ChatHandler struct {
	chatService         *domain.ChatService
	notificationService *domain.NotificationService
	wsManager           *WebSocketManager
	pollInterval        time.Duration
	logger              *zap.Logger
}

func NewChatHandler(chatService *domain.ChatService, notificationService *domain.NotificationService, wsManager *WebSocketManager, pollInterval time.Duration, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		notificationService: notificationService,
		wsManager:           wsManager,
		pollInterval:        pollInterval,
		logger:              logger,
	}
}

// HandleWebSocket upgrades HTTP connection to WebSocket
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: actor.UserID,
	}

	if !h.wsManager.add(client) {
		conn.Close()
		return
	}
	metrics.WSConnected()

	sess := newSession(client, actor, h.chatService, h.notificationService, h.pollInterval, h.logger)

	go client.WritePump()
	go func() {
		defer metrics.WSDisconnected()
		client.ReadPump(h.wsManager, sess)
	}()
}

// CreateConversation handles POST /conversations
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Participant string `json:"participant" validate:"required"`
	}
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "open conversation")
		return
	}

	conv, err := h.chatService.OpenConversation(r.Context(), actor, req.Participant)
	if err != nil {
		writeError(w, h.logger, err, "open conversation")
		return
	}

	response.OK(w, conv)
}

// GetConversations returns the caller's conversations, most recent first
func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	convs, err := h.chatService.ListConversations(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, err, "get conversations")
		return
	}

	response.OK(w, convs)
}

// GetMessages returns the recent window of a conversation, oldest first
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	msgs, err := h.chatService.ListMessages(r.Context(), actor, chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logger, err, "get messages")
		return
	}

	response.OK(w, msgs)
}

// SendMessage posts a message to a conversation. Live listeners pick it up.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" validate:"required"`
	}
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "send message")
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), actor, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, h.logger, err, "send message")
		return
	}

	response.Created(w, msg)
}
