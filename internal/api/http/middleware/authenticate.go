package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/session"
)

// TokenResolver turns a token cookie into an identity.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (model.Identity, error)
}

// IdentityObserver receives the identity resolved for every request.
type IdentityObserver interface {
	ObserveIdentity(ctx context.Context, sessionID string, identity model.Identity) (session.State, error)
	IdentityAbsent(ctx context.Context, sessionID string) (session.Result, error)
}

// ContextManager stores request session data.
type ContextManager interface {
	SetIdentityToContext(ctx context.Context, identity model.Identity) context.Context
	SetSessionIDToContext(ctx context.Context, sessionID string) context.Context
}

// Authenticate establishes the browser session and its identity for every
// request. A missing, invalid or revoked token leads to a fresh anonymous identity.
type Authenticate struct {
	tokens         TokenResolver
	observer       IdentityObserver
	contextManager ContextManager
	cookies        Cookies
	logger         *logger.Logger
}

func NewAuthenticate(
	tokens TokenResolver,
	observer IdentityObserver,
	contextManager ContextManager,
	cookies Cookies,
	logger *logger.Logger,
) *Authenticate {
	return &Authenticate{
		tokens:         tokens,
		observer:       observer,
		contextManager: contextManager,
		cookies:        cookies,
		logger:         logger,
	}
}

func (m *Authenticate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessionID := m.sessionID(w, r)
		identity, err := m.identity(ctx, w, r, sessionID)
		if err != nil {
			m.logger.Error("failed to establish session identity",
				"session_id", sessionID,
				"error", err.Error())
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx = m.contextManager.SetSessionIDToContext(ctx, sessionID)
		ctx = m.contextManager.SetIdentityToContext(ctx, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Authenticate) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	sessionID := uuid.NewString()
	m.cookies.SetSessionID(w, sessionID)
	return sessionID
}

func (m *Authenticate) identity(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID string) (model.Identity, error) {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		identity, err := m.tokens.Resolve(ctx, c.Value)
		switch {
		case err != nil:
			m.logger.Debug("session token rejected",
				"session_id", sessionID,
				"error", err.Error())
		case identity.SessionID != sessionID:
			m.logger.Info("session token belongs to another session",
				"session_id", sessionID,
				"uid", identity.ID)
		default:
			if _, err := m.observer.ObserveIdentity(ctx, sessionID, identity); err != nil {
				return model.Identity{}, err
			}
			return identity, nil
		}
	}

	res, err := m.observer.IdentityAbsent(ctx, sessionID)
	if err != nil {
		return model.Identity{}, err
	}
	m.cookies.SetToken(w, res.Token)
	if res.Identity == nil {
		return model.Identity{}, nil
	}
	return *res.Identity, nil
}
