package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/membership-server/internal/model"
)

func TestManager_Identity(t *testing.T) {
	m := NewManager()

	_, ok := m.GetIdentityFromContext(context.Background())
	assert.False(t, ok)

	identity := model.Identity{ID: "uid", Anonymous: true}
	ctx := m.SetIdentityToContext(context.Background(), identity)

	got, ok := m.GetIdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, identity, got)
}

func TestManager_SessionID(t *testing.T) {
	m := NewManager()

	_, ok := m.GetSessionIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = m.GetSessionIDFromContext(m.SetSessionIDToContext(context.Background(), ""))
	assert.False(t, ok, "empty session IDs are not accepted")

	got, ok := m.GetSessionIDFromContext(m.SetSessionIDToContext(context.Background(), "sid"))
	require.True(t, ok)
	assert.Equal(t, "sid", got)
}

func TestManager_KeysDoNotCollide(t *testing.T) {
	m := NewManager()
	ctx := m.SetSessionIDToContext(context.Background(), "sid")
	ctx = m.SetIdentityToContext(ctx, model.Identity{ID: "uid"})

	sid, _ := m.GetSessionIDFromContext(ctx)
	identity, _ := m.GetIdentityFromContext(ctx)
	assert.Equal(t, "sid", sid)
	assert.Equal(t, "uid", identity.ID)
}
