package model

import (
	"context"
	"time"
)

// SessionStore persists serialized per-session view state.
// Get returns ErrNotFound for unknown or expired sessions.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Set(ctx context.Context, sessionID string, state []byte, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// RevocationList remembers signed-out session tokens until they expire.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
