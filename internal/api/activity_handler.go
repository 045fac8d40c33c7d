package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/pkg/response"
)

// ActivityHandler exposes the social actions that fan out notifications.
type ActivityHandler struct {
	service *domain.ActivityService
	logger  *zap.Logger
}

func NewActivityHandler(service *domain.ActivityService, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger,
	}
}

// Comment handles POST /songs/{id}/comments
func (h *ActivityHandler) Comment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req domain.CreateCommentRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "create comment")
		return
	}

	c, err := h.service.Comment(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, h.logger, err, "create comment")
		return
	}

	response.Created(w, c)
}

// Like handles POST /songs/{id}/like
func (h *ActivityHandler) Like(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.Like(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, "like release")
		return
	}

	response.OK(w, map[string]bool{"liked": true})
}

// Follow handles POST /users/{id}/follow
func (h *ActivityHandler) Follow(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.Follow(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, "follow user")
		return
	}

	response.OK(w, map[string]bool{"following": true})
}

// Publish handles POST /releases
func (h *ActivityHandler) Publish(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req domain.PublishRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "publish release")
		return
	}

	release, err := h.service.Publish(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err, "publish release")
		return
	}

	response.Created(w, release)
}
