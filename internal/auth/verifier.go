package auth

import (
	"context"
	"errors"
)

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID string
	Email  string
	Admin  bool
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Chain accepts a token if any of its verifiers does. Verifiers are tried in
// order.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (*Identity, error) {
	err := ErrInvalidToken
	for _, v := range c {
		id, verr := v.Verify(ctx, token)
		if verr == nil {
			return id, nil
		}
		if errors.Is(verr, ErrExpiredToken) {
			err = ErrExpiredToken
		}
	}
	return nil, err
}
