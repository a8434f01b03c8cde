package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/membership-server/internal/model"
)

type accountsByID struct {
	accounts map[uuid.UUID]model.Account
	err      error
}

func (a accountsByID) GetByEmail(context.Context, string) (model.Account, error) {
	return model.Account{}, model.ErrNotFound
}

func (a accountsByID) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	if a.err != nil {
		return model.Account{}, a.err
	}
	account, ok := a.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return account, nil
}

func (a accountsByID) Create(_ context.Context, account model.Account) (model.Account, error) {
	return account, nil
}

func (a accountsByID) SetRole(context.Context, uuid.UUID, model.Role) error {
	return nil
}

func TestAuthorizeRegistrations(t *testing.T) {
	adminID, userID := uuid.New(), uuid.New()
	accounts := accountsByID{accounts: map[uuid.UUID]model.Account{
		adminID: {ID: adminID, Role: model.RoleAdmin},
		userID:  {ID: userID, Role: model.RoleNone},
	}}

	tests := []struct {
		name     string
		identity model.Identity
		denied   bool
	}{
		{name: "admin", identity: model.Identity{ID: adminID.String()}},
		{name: "account without role", identity: model.Identity{ID: userID.String()}, denied: true},
		{name: "anonymous", identity: model.Identity{ID: adminID.String(), Anonymous: true}, denied: true},
		{name: "not a uuid", identity: model.Identity{ID: "anon-1"}, denied: true},
		{name: "unknown account", identity: model.Identity{ID: uuid.NewString()}, denied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := model.AuthorizeRegistrations(context.Background(), accounts, tt.identity)
			if tt.denied {
				require.ErrorIs(t, err, model.ErrPermissionDenied)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAuthorizeRegistrations_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	accounts := accountsByID{err: storeErr}

	err := model.AuthorizeRegistrations(context.Background(), accounts, model.Identity{ID: uuid.NewString()})

	require.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, model.ErrPermissionDenied)
}
