package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/membership-server/internal/model"
)

func newAdmin(t *testing.T, accounts *AccountStore, role model.Role) model.Identity {
	t.Helper()
	acc, err := accounts.Create(context.Background(), model.Account{ID: uuid.New(), Email: uuid.NewString() + "@example.ma", Role: role})
	require.NoError(t, err)
	return model.Identity{ID: acc.ID.String(), Email: acc.Email}
}

func receive(t *testing.T, sub model.Subscription) []model.Registration {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return nil
	}
}

func TestRegistrationStore_Create(t *testing.T) {
	store := NewRegistrationStore(NewAccountStore())
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	saved, err := store.Create(context.Background(), model.Registration{FullName: "Ali"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, saved.ID)
	assert.Equal(t, fixed, saved.CreatedAt)
	assert.Equal(t, 1, store.Len())
}

func TestRegistrationStore_FailCreates(t *testing.T) {
	store := NewRegistrationStore(NewAccountStore())
	boom := errors.New("backend unavailable")

	store.FailCreates(boom)
	_, err := store.Create(context.Background(), model.Registration{FullName: "Ali"})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, store.Len())

	store.FailCreates(nil)
	_, err = store.Create(context.Background(), model.Registration{FullName: "Ali"})
	require.NoError(t, err)
}

func TestRegistrationStore_Subscribe_Permissions(t *testing.T) {
	accounts := NewAccountStore()
	store := NewRegistrationStore(accounts)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity model.Identity
	}{
		{name: "anonymous", identity: model.Identity{ID: uuid.NewString(), Anonymous: true}},
		{name: "not an account id", identity: model.Identity{ID: "abc"}},
		{name: "unknown account", identity: model.Identity{ID: uuid.NewString()}},
		{name: "account without role", identity: newAdmin(t, accounts, model.RoleNone)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Subscribe(ctx, tt.identity, model.Query{})
			require.ErrorIs(t, err, model.ErrPermissionDenied)
		})
	}
	assert.Zero(t, store.Subscribers())
}

func TestRegistrationStore_Subscribe_Snapshots(t *testing.T) {
	accounts := NewAccountStore()
	store := NewRegistrationStore(accounts)
	ctx := context.Background()
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, err := store.Create(ctx, model.Registration{FullName: "first"})
	require.NoError(t, err)

	sub, err := store.Subscribe(ctx, newAdmin(t, accounts, model.RoleAdmin), model.Query{})
	require.NoError(t, err)
	defer sub.Close()

	initial := receive(t, sub)
	require.Len(t, initial, 1)

	_, err = store.Create(ctx, model.Registration{FullName: "second"})
	require.NoError(t, err)

	next := receive(t, sub)
	require.Len(t, next, 2)
	assert.Equal(t, "second", next[0].FullName, "newest first")
	assert.Equal(t, "first", next[1].FullName)
}

func TestRegistrationStore_Subscribe_LatestSnapshotWins(t *testing.T) {
	accounts := NewAccountStore()
	store := NewRegistrationStore(accounts)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, newAdmin(t, accounts, model.RoleAdmin), model.Query{Limit: 2})
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, model.Registration{FullName: "member"})
		require.NoError(t, err)
	}

	snap := receive(t, sub)
	assert.Len(t, snap, 2, "limit applies")
	select {
	case <-sub.Snapshots():
		t.Fatal("stale snapshots must be replaced")
	default:
	}
}

func TestRegistrationStore_CloseAndFail(t *testing.T) {
	accounts := NewAccountStore()
	store := NewRegistrationStore(accounts)
	ctx := context.Background()
	admin := newAdmin(t, accounts, model.RoleAdmin)

	closed, err := store.Subscribe(ctx, admin, model.Query{})
	require.NoError(t, err)
	failed, err := store.Subscribe(ctx, admin, model.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Subscribers())

	require.NoError(t, closed.Close())
	require.NoError(t, closed.Close())
	assert.Equal(t, 1, store.Subscribers())

	boom := errors.New("stream reset")
	store.FailSubscriptions(boom)
	assert.Zero(t, store.Subscribers())

	select {
	case err := <-failed.Errors():
		require.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}
