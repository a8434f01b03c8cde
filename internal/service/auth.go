package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/metrics"
	"github.com/dtroode/membership-server/internal/model"
)

// MinPasswordLength is the shortest admin password accepted by CreateAccount.
const MinPasswordLength = 8

var _ model.IdentityProvider = (*Auth)(nil)

// Auth issues anonymous and credentialed session identities and manages admin accounts.
type Auth struct {
	accounts    model.AccountStore
	tokens      model.TokenManager
	revocations model.RevocationList
	logger      *logger.Logger
	metrics     *metrics.Metrics
	bcryptCost  int
	dummyHash   []byte
}

func NewAuth(
	accounts model.AccountStore,
	tokens model.TokenManager,
	revocations model.RevocationList,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Auth {
	return newAuth(accounts, tokens, revocations, logger, metrics, bcrypt.DefaultCost)
}

func newAuth(
	accounts model.AccountStore,
	tokens model.TokenManager,
	revocations model.RevocationList,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cost int,
) *Auth {
	// Compared against on unknown emails so both failure paths cost the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("membership-dummy-password"), cost)

	return &Auth{
		accounts:    accounts,
		tokens:      tokens,
		revocations: revocations,
		logger:      logger,
		metrics:     metrics,
		bcryptCost:  cost,
		dummyHash:   dummy,
	}
}

func (a *Auth) SignInAnonymously(ctx context.Context, sessionID string) (model.Identity, string, error) {
	identity := model.Identity{
		ID:        uuid.NewString(),
		Anonymous: true,
		SessionID: sessionID,
	}

	token, issued, err := a.tokens.Issue(identity)
	if err != nil {
		a.logger.Error("Auth service: failed to issue anonymous token",
			"session_id", sessionID,
			"error", err.Error())
		return model.Identity{}, "", fmt.Errorf("failed to issue anonymous token: %w", err)
	}

	a.logger.Debug("Auth service: anonymous identity established",
		"session_id", sessionID,
		"uid", issued.ID)

	return issued, token, nil
}

func (a *Auth) SignInWithCredentials(ctx context.Context, sessionID, email, password string) (model.Identity, string, error) {
	email = normalizeEmail(email)

	account, err := a.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
			a.metrics.LoginAttempt(metrics.LoginFailed)
			a.logger.Info("Auth service: sign-in rejected",
				"session_id", sessionID)
			return model.Identity{}, "", model.ErrInvalidCredentials
		}
		a.metrics.LoginAttempt(metrics.LoginError)
		a.logger.Error("Auth service: failed to get account by email",
			"session_id", sessionID,
			"error", err.Error())
		return model.Identity{}, "", fmt.Errorf("failed to get account by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		a.metrics.LoginAttempt(metrics.LoginFailed)
		a.logger.Info("Auth service: sign-in rejected",
			"session_id", sessionID)
		return model.Identity{}, "", model.ErrInvalidCredentials
	}

	token, issued, err := a.tokens.Issue(model.Identity{
		ID:        account.ID.String(),
		Email:     account.Email,
		SessionID: sessionID,
	})
	if err != nil {
		a.metrics.LoginAttempt(metrics.LoginError)
		a.logger.Error("Auth service: failed to issue token",
			"account_id", account.ID,
			"error", err.Error())
		return model.Identity{}, "", fmt.Errorf("failed to issue token: %w", err)
	}

	a.metrics.LoginAttempt(metrics.LoginSucceeded)
	a.logger.Info("Auth service: admin signed in",
		"account_id", account.ID,
		"session_id", sessionID)

	return issued, token, nil
}

// SignOut revokes the identity's token for the rest of its lifetime.
func (a *Auth) SignOut(ctx context.Context, identity model.Identity) error {
	ttl := time.Until(identity.ExpiresAt)
	if identity.TokenID == "" || ttl <= 0 {
		return nil
	}

	if err := a.revocations.Revoke(ctx, identity.TokenID, ttl); err != nil {
		a.logger.Error("Auth service: failed to revoke token",
			"uid", identity.ID,
			"error", err.Error())
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	a.logger.Info("Auth service: signed out",
		"uid", identity.ID,
		"session_id", identity.SessionID)

	return nil
}

// Resolve parses token and rejects revoked tokens with ErrTokenRevoked.
func (a *Auth) Resolve(ctx context.Context, token string) (model.Identity, error) {
	identity, err := a.tokens.Parse(token)
	if err != nil {
		return model.Identity{}, err
	}

	revoked, err := a.revocations.IsRevoked(ctx, identity.TokenID)
	if err != nil {
		return model.Identity{}, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return model.Identity{}, model.ErrTokenRevoked
	}

	return identity, nil
}

// CreateAccount stores a new account with a bcrypt hash of password.
func (a *Auth) CreateAccount(ctx context.Context, email, password string, role model.Role) (model.Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return model.Account{}, errors.New("email is required")
	}
	if len(password) < MinPasswordLength {
		return model.Account{}, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	account, err := a.accounts.Create(ctx, model.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	a.logger.Info("Auth service: account created",
		"account_id", account.ID,
		"role", string(role))

	return account, nil
}

// Grant sets the role of the account registered under email.
func (a *Auth) Grant(ctx context.Context, email string, role model.Role) (model.Account, error) {
	account, err := a.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	if err := a.accounts.SetRole(ctx, account.ID, role); err != nil {
		return model.Account{}, fmt.Errorf("failed to set role: %w", err)
	}
	account.Role = role

	a.logger.Info("Auth service: role granted",
		"account_id", account.ID,
		"role", string(role))

	return account, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
