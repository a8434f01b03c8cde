package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/membership-server/internal/model"
)

const uniqueViolation = "23505"

var _ model.AccountStore = (*AccountRepository)(nil)

type AccountRepository struct {
	db *Connection
}

func NewAccountRepository(db *Connection) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT id, email, password_hash, role, created_at, updated_at
			  FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `SELECT id, email, password_hash, role, created_at, updated_at
			  FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account model.Account) (model.Account, error) {
	query := `INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id, email, password_hash, role, created_at, updated_at`

	saved, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID, account.Email, account.PasswordHash, string(account.Role),
		account.CreatedAt, account.UpdatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Account{}, model.ErrAlreadyExists
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return saved, nil
}

func (r *AccountRepository) SetRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	query := `UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(role))
	if err != nil {
		return fmt.Errorf("failed to set account role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	return nil
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var (
		account model.Account
		role    string
	)
	err := row.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &role,
		&account.CreatedAt, &account.UpdatedAt,
	)
	account.Role = model.Role(role)
	return account, err
}
