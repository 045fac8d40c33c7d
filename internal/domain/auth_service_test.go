package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/auth"
	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/repository"
)

// stubVerifier accepts exactly the tokens in its map.
type stubVerifier map[string]*auth.Identity

func (v stubVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, auth.ErrInvalidToken
}

func TestExchangeIssuesServiceToken(t *testing.T) {
	store := repository.NewMemoryStore()
	_, err := store.UpsertUser(context.Background(), &domain.User{ID: "u1", Handle: "listener"})
	require.NoError(t, err)

	jwtManager := auth.NewJWTManager("test-secret", "tunehub")
	svc := domain.NewAuthService(stubVerifier{
		"google-token": {UserID: "u1", Email: "u1@example.com"},
		"staff-token":  {UserID: "ops", Admin: true},
	}, jwtManager, store, 30*time.Minute, zap.NewNop())

	session, err := svc.Exchange(context.Background(), "google-token")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	require.NotNil(t, session.User)
	assert.Equal(t, "listener", session.User.Handle)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), session.ExpiresAt, time.Minute)

	claims, err := jwtManager.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)
	assert.Empty(t, claims.Role)

	staff, err := svc.Exchange(context.Background(), "staff-token")
	require.NoError(t, err)
	assert.Nil(t, staff.User)

	identity, err := jwtManager.Verify(context.Background(), staff.AccessToken)
	require.NoError(t, err)
	assert.True(t, identity.Admin)
}

func TestExchangeRejectsBadTokens(t *testing.T) {
	svc := domain.NewAuthService(stubVerifier{}, auth.NewJWTManager("s", "tunehub"),
		repository.NewMemoryStore(), 0, zap.NewNop())

	_, err := svc.Exchange(context.Background(), "forged")
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))

	_, err = svc.Exchange(context.Background(), "")
	assert.True(t, domain.IsValidation(err))
}
