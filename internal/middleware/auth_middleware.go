package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tunehub/backend/internal/auth"
	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/pkg/response"
)

type contextKey string

const actorKey contextKey = "actor"

// accessTokenParam carries the token for clients that cannot set headers,
// such as browser WebSocket connections.
const accessTokenParam = "access_token"

// AuthMiddleware verifies the bearer token and stores the caller as a
// domain.Actor in the request context.
func AuthMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					response.Unauthorized(w, "token has expired")
					return
				}
				response.Unauthorized(w, "invalid token")
				return
			}

			if holder, ok := r.Context().Value(actorHolderKey).(*actorHolder); ok {
				holder.userID = identity.UserID
			}

			actor := domain.Actor{
				UserID: identity.UserID,
				Email:  identity.Email,
				Admin:  identity.Admin,
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get(accessTokenParam)
		return token, token != ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor extracts the authenticated caller from context
func GetActor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}
