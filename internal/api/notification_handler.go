package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/pkg/response"
)

type NotificationHandler struct {
	service *domain.NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

// CreateNotification handles POST /notifications
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req domain.CreateNotificationRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "create notification")
		return
	}

	n, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err, "create notification")
		return
	}

	response.Created(w, n)
}

// GetNotifications handles GET /notifications?user=<id>, newest first
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	notifs, err := h.service.List(r.Context(), actor, r.URL.Query().Get("user"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logger, err, "fetch notifications")
		return
	}

	response.OK(w, notifs)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), actor, r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, h.logger, err, "count notifications")
		return
	}

	response.OK(w, map[string]int64{"count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, "update notification")
		return
	}

	response.OK(w, map[string]string{"message": "notification marked as read"})
}

// MarkAllRead handles PUT /notifications/readall with an optional {user} body
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req struct {
		User string `json:"user"`
	}
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, h.logger, err, "update notifications")
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), actor, req.User)
	if err != nil {
		writeError(w, h.logger, err, "update notifications")
		return
	}

	response.OK(w, map[string]int64{"updated": updated})
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, "delete notification")
		return
	}

	response.OK(w, map[string]string{"message": "notification deleted"})
}

// RegisterDevice handles POST /devices
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "register device")
		return
	}

	if err := h.service.RegisterDevice(r.Context(), actor, req.Token); err != nil {
		writeError(w, h.logger, err, "register device")
		return
	}

	response.OK(w, map[string]string{"message": "device registered"})
}
