package domain

import (
	"context"
	"strings"
	"time"

	"github.com/tunehub/backend/pkg/validator"
)

const maxDisplayName = 100

type UserService struct {
	repo UserRepository
	now  func() time.Time
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, now: time.Now}
}

// GetProfile returns the actor's profile.
func (s *UserService) GetProfile(ctx context.Context, actor Actor) (*User, error) {
	return s.repo.GetUserByID(ctx, actor.UserID)
}

// UpsertProfile creates or updates the actor's profile. Handles are unique
// regardless of case.
func (s *UserService) UpsertProfile(ctx context.Context, actor Actor, req UpdateProfileRequest) (*User, error) {
	if err := ValidateIdentifier("user", actor.UserID); err != nil {
		return nil, err
	}
	handle := strings.TrimPrefix(strings.TrimSpace(req.Handle), "@")
	if handle == "" {
		return nil, Invalid("handle", "is required")
	}
	if !ValidHandle(handle) {
		return nil, Invalid("handle", "may only contain letters, digits and underscores")
	}

	if other, err := s.repo.GetUserByHandle(ctx, handle); err == nil && other.ID != actor.UserID {
		return nil, ErrConflict
	}

	email := req.Email
	if email == "" {
		email = actor.Email
	}
	now := s.now().UTC()
	return s.repo.UpsertUser(ctx, &User{
		ID:          actor.UserID,
		Handle:      handle,
		Email:       email,
		DisplayName: validator.SanitizeString(req.DisplayName, maxDisplayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
