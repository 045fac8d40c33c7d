package auth

import (
	"context"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseVerifier accepts Firebase Auth ID tokens. A custom claim
// "admin": true grants the admin role.
type FirebaseVerifier struct {
	client *fbauth.Client
}

func NewFirebaseVerifier(client *fbauth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify implements Verifier.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	t, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		if fbauth.IsIDTokenExpired(err) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := &Identity{UserID: t.UID}
	if email, ok := t.Claims["email"].(string); ok {
		id.Email = email
	}
	if admin, ok := t.Claims[RoleAdmin].(bool); ok {
		id.Admin = admin
	}
	return id, nil
}
