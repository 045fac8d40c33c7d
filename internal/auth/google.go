package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"
)

var (
	ErrInvalidGoogleToken = errors.New("invalid Google ID token")
	ErrGoogleEmailMissing = errors.New("email not found in Google token")
)

// GoogleAuthVerifier accepts Google ID tokens minted for one of the
// configured client IDs. The Google subject becomes the user id.
type GoogleAuthVerifier struct {
	clientIDs []string
}

// NewGoogleAuthVerifier creates a new Google auth verifier
func NewGoogleAuthVerifier(clientIDs []string) *GoogleAuthVerifier {
	return &GoogleAuthVerifier{
		clientIDs: clientIDs,
	}
}

// Verify implements Verifier.
func (v *GoogleAuthVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	// Try to validate with each client ID
	var payload *idtoken.Payload
	var err error

	for _, clientID := range v.clientIDs {
		payload, err = idtoken.Validate(ctx, token, clientID)
		if err == nil {
			break
		}
	}

	if payload == nil {
		return nil, ErrInvalidGoogleToken
	}

	sub, ok := payload.Claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrInvalidGoogleToken
	}

	email, ok := payload.Claims["email"].(string)
	if !ok {
		return nil, ErrGoogleEmailMissing
	}

	return &Identity{UserID: sub, Email: email}, nil
}

// IsConfigured returns true if Google sign-in is configured
func (v *GoogleAuthVerifier) IsConfigured() bool {
	return len(v.clientIDs) > 0 && v.clientIDs[0] != ""
}
