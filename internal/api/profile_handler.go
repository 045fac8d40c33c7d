package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/pkg/response"
)

type ProfileHandler struct {
	service *domain.UserService
	logger  *zap.Logger
}

func NewProfileHandler(service *domain.UserService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		logger:  logger,
	}
}

// Me returns the caller's profile
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetProfile(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, err, "get profile")
		return
	}

	response.OK(w, user)
}

// UpdateProfile creates or updates the caller's profile and handle
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req domain.UpdateProfileRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "update profile")
		return
	}

	user, err := h.service.UpsertProfile(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err, "update profile")
		return
	}

	response.OK(w, user)
}
