package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/auth"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const defaultSessionTTL = time.Hour

// Session is a service access token minted for a verified identity.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	// User is nil until the caller has created a profile with PUT /me.
	User *User `json:"user,omitempty"`
}

// AuthService trades identity provider tokens for service tokens.
type AuthService struct {
	identities auth.Verifier
	jwt        *auth.JWTManager
	users      UserRepository
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates a new auth service. identities verifies the
// provider tokens accepted by Exchange.
func NewAuthService(identities auth.Verifier, jwt *auth.JWTManager, users UserRepository, ttl time.Duration, logger *zap.Logger) *AuthService {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &AuthService{
		identities: identities,
		jwt:        jwt,
		users:      users,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Exchange verifies a Google or Firebase ID token and returns a session for
// its subject.
func (s *AuthService) Exchange(ctx context.Context, idToken string) (*Session, error) {
	if idToken == "" {
		return nil, Invalid("id_token", "is required")
	}

	identity, err := s.identities.Verify(ctx, idToken)
	if err != nil {
		s.logger.Debug("identity token rejected", zap.Error(err))
		return nil, ErrUnauthenticated
	}

	role := ""
	if identity.Admin {
		role = auth.RoleAdmin
	}
	token, err := s.jwt.GenerateAccessToken(identity.UserID, identity.Email, role, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	session := &Session{
		AccessToken: token,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
		UserID:      identity.UserID,
	}

	user, err := s.users.GetUserByID(ctx, identity.UserID)
	switch {
	case err == nil:
		session.User = user
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("load user: %w", err)
	}

	s.logger.Info("session issued", zap.String("user", identity.UserID))
	return session, nil
}
