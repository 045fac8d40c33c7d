package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/pkg/response"
)

const stateCookie = "oauth_state"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *domain.AuthService
	oauth       *oauth2.Config // nil when the browser flow is not configured
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *domain.AuthService, oauth *oauth2.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		oauth:       oauth,
		logger:      logger,
	}
}

// ExchangeRequest carries a Google or Firebase ID token.
type ExchangeRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// Exchange handles POST /auth/session
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err, "exchange token")
		return
	}

	session, err := h.authService.Exchange(r.Context(), req.IDToken)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	response.OK(w, session)
}

// GoogleLogin starts the browser flow by redirecting to Google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		response.NotFound(w, "google sign-in is not configured")
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback exchanges the authorization code and returns a session
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		response.NotFound(w, "google sign-in is not configured")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		response.BadRequest(w, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		response.BadRequest(w, "authorization code missing")
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("Failed to exchange code for token", zap.Error(err))
		response.Unauthorized(w, "failed to authenticate with Google")
		return
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok {
		h.logger.Error("No ID token in response")
		response.Unauthorized(w, "failed to get user info from Google")
		return
	}

	session, err := h.authService.Exchange(r.Context(), idToken)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	response.OK(w, session)
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUnauthenticated) {
		response.Unauthorized(w, "invalid identity token")
		return
	}
	writeError(w, h.logger, err, "exchange token")
}
