package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountStore defines persistence operations for admin accounts.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
	SetRole(ctx context.Context, id uuid.UUID, role Role) error
}

// Role is the authorization level granted to an account.
type Role string

const (
	// RoleNone can sign in but cannot read registrations.
	RoleNone Role = ""
	// RoleAdmin can read and export registrations.
	RoleAdmin Role = "admin"
)

// Account represents a credentialed user of the dashboard.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanReadRegistrations reports whether the account may subscribe to registrations.
func (a Account) CanReadRegistrations() bool {
	return a.Role == RoleAdmin
}

// AuthorizeRegistrations checks that identity belongs to an account allowed to
// read registrations. Refusals wrap ErrPermissionDenied.
func AuthorizeRegistrations(ctx context.Context, accounts AccountStore, identity Identity) error {
	if identity.Anonymous {
		return fmt.Errorf("anonymous identity: %w", ErrPermissionDenied)
	}
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return fmt.Errorf("identity %q is not an account: %w", identity.ID, ErrPermissionDenied)
	}

	account, err := accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("account %s not found: %w", id, ErrPermissionDenied)
		}
		return fmt.Errorf("failed to check registrations access: %w", err)
	}
	if !account.CanReadRegistrations() {
		return fmt.Errorf("account %s lacks admin role: %w", id, ErrPermissionDenied)
	}

	return nil
}
