// Package context carries per-request session data through request contexts.
package context

import (
	"context"

	"github.com/dtroode/membership-server/internal/model"
)

type contextKey int

const (
	identityKey contextKey = iota
	sessionIDKey
)

var _ model.ContextManager = (*Manager)(nil)

// Manager stores the resolved identity and browser session ID of a request.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) SetIdentityToContext(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func (m *Manager) GetIdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}

func (m *Manager) SetSessionIDToContext(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionIDFromContext returns the browser session ID; ok is false when the
// request did not pass the session middleware.
func (m *Manager) GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok && sessionID != ""
}
