package model

import (
	"context"
	"time"
)

// Identity is the principal attached to a browser session.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Anonymous bool      `json:"anonymous"`
	SessionID string    `json:"session_id"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SameAs reports whether both identities denote the same principal.
func (i *Identity) SameAs(other *Identity) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.ID == other.ID && i.Anonymous == other.Anonymous
}

// IdentityProvider manages anonymous and credentialed identities.
// Sign-in methods return the identity together with the signed session token.
type IdentityProvider interface {
	SignInAnonymously(ctx context.Context, sessionID string) (Identity, string, error)
	SignInWithCredentials(ctx context.Context, sessionID, email, password string) (Identity, string, error)
	SignOut(ctx context.Context, identity Identity) error
	Resolve(ctx context.Context, token string) (Identity, error)
}
