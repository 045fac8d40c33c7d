package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tunehub/backend/internal/auth"
	"github.com/tunehub/backend/internal/domain"
)

func echoActor(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(actor.UserID))
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", "tunehub")
	token, err := jwtManager.GenerateAccessToken("u1", "", "", time.Minute)
	require.NoError(t, err)
	expired, err := jwtManager.GenerateAccessToken("u1", "", "", -time.Minute)
	require.NoError(t, err)

	handler := AuthMiddleware(jwtManager)(http.HandlerFunc(echoActor))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer header", header: "Bearer " + token, status: http.StatusOK, body: "u1"},
		{name: "query token", query: "?access_token=" + token, status: http.StatusOK, body: "u1"},
		{name: "missing", status: http.StatusUnauthorized, body: "missing authorization header"},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized, body: "token has expired"},
		{name: "garbage", header: "Bearer garbage", status: http.StatusUnauthorized, body: "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func actorFor(user string) domain.Actor {
	return domain.Actor{UserID: user}
}

func TestRateLimiterKeysByUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, zap.NewNop())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := rl.Handler(ok)

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if user != "" {
			req = req.WithContext(WithActor(req.Context(), actorFor(user)))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("u1"))
	assert.Equal(t, http.StatusNoContent, call("u1"))
	assert.Equal(t, http.StatusTooManyRequests, call("u1"))

	// same address, different user
	assert.Equal(t, http.StatusNoContent, call("u2"))
	assert.Equal(t, http.StatusNoContent, call(""))
}

func TestRateLimiterKeysAnonymousByHost(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, zap.NewNop())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	limited := 0
	for port := 40000; port < 40050; port++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", nil)
		req.RemoteAddr = fmt.Sprintf("203.0.113.7:%d", port)
		// a client-supplied header must not buy a fresh bucket
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", port%250))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 49, limited)
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "203.0.113.7")
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:5555"
	assert.Equal(t, "2001:db8::1", getRealIP(req))

	// chi's RealIP leaves a bare address without a port
	req.RemoteAddr = "192.0.2.4"
	assert.Equal(t, "192.0.2.4", getRealIP(req))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, zap.NewNop())
	rl.getLimiter("stale")
	rl.limiters["stale"].lastSeen = time.Now().Add(-time.Hour)
	rl.getLimiter("fresh")

	rl.Cleanup()
	assert.NotContains(t, rl.limiters, "stale")
	assert.Contains(t, rl.limiters, "fresh")
}

func TestLoggingMiddlewareRecordsUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	jwtManager := auth.NewJWTManager("secret", "tunehub")
	token, err := jwtManager.GenerateAccessToken("u7", "", "", time.Minute)
	require.NoError(t, err)

	handler := LoggingMiddleware(zap.New(core))(AuthMiddleware(jwtManager)(http.HandlerFunc(echoActor)))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "http request", entry.Message)
	assert.Equal(t, "u7", entry.ContextMap()["user_id"])
	assert.EqualValues(t, http.StatusOK, entry.ContextMap()["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
