package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/auth"
	"github.com/tunehub/backend/internal/metrics"
	"github.com/tunehub/backend/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Notifications *NotificationHandler
	Messages      *MessageHandler
	Chat          *ChatHandler
	Activity      *ActivityHandler
	Profile       *ProfileHandler
	Health        *HealthHandler
}

// Router holds all handlers and creates the chi router
type Router struct {
	handlers       Handlers
	verifier       auth.Verifier
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	handlers Handlers,
	verifier auth.Verifier,
	rateLimiter *middleware.RateLimiter,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		handlers:       handlers,
		verifier:       verifier,
		rateLimiter:    rateLimiter,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()
	h := rt.handlers

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/live", h.Health.Live)
	})
	r.Handle("/metrics", metrics.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Sign-in routes (no auth required, limited per IP)
		r.Route("/auth", func(r chi.Router) {
			if rt.rateLimiter != nil {
				r.Use(rt.rateLimiter.Handler)
			}
			r.Post("/session", h.Auth.Exchange)
			r.Get("/google", h.Auth.GoogleLogin)
			r.Get("/google/callback", h.Auth.GoogleCallback)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.verifier))
			if rt.rateLimiter != nil {
				r.Use(rt.rateLimiter.Handler)
			}
			rt.protected(r)
		})
	})

	return r
}

func (rt *Router) protected(r chi.Router) {
	h := rt.handlers

	r.Get("/ws", h.Chat.HandleWebSocket)

	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Notifications.CreateNotification)
		r.Get("/", h.Notifications.GetNotifications)
		r.Get("/unread-count", h.Notifications.UnreadCount)
		r.Put("/readall", h.Notifications.MarkAllRead)
		r.Put("/{id}/read", h.Notifications.MarkRead)
		r.Delete("/{id}", h.Notifications.DeleteNotification)
	})

	r.Route("/message", func(r chi.Router) {
		r.Post("/", h.Messages.Send)
		r.Post("/reply", h.Messages.Reply)
		r.Get("/inbox", h.Messages.Inbox)
		r.Get("/thread/{threadId}", h.Messages.Thread)
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.Chat.CreateConversation)
		r.Get("/", h.Chat.GetConversations)
		r.Get("/{id}/messages", h.Chat.GetMessages)
		r.Post("/{id}/messages", h.Chat.SendMessage)
	})

	r.Post("/songs/{id}/comments", h.Activity.Comment)
	r.Post("/songs/{id}/like", h.Activity.Like)
	r.Post("/users/{id}/follow", h.Activity.Follow)
	r.Post("/releases", h.Activity.Publish)

	r.Get("/me", h.Profile.Me)
	r.Put("/me", h.Profile.UpdateProfile)
	r.Post("/devices", h.Notifications.RegisterDevice)
}
