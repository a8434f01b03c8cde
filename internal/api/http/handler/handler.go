// Package handler serves the registration form, the admin login and the
// dashboard as server-rendered pages.
package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/dtroode/membership-server/internal/api/http/middleware"
	"github.com/dtroode/membership-server/internal/export"
	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/session"
)

// SessionController drives the view state of browser sessions.
type SessionController interface {
	View(ctx context.Context, sessionID string) (session.State, session.Snapshot, error)
	OpenLogin(ctx context.Context, sessionID string) (session.State, error)
	CancelLogin(ctx context.Context, sessionID string) (session.State, error)
	ResetSubmission(ctx context.Context, sessionID string) (session.State, error)
	Submit(ctx context.Context, sessionID string, form model.RegistrationForm, userAgent string) (session.Result, error)
	Login(ctx context.Context, sessionID, email, password string) (session.Result, error)
	Logout(ctx context.Context, sessionID string) (session.Result, error)
	Scope(sessionID string) (*session.Scope, bool)
}

// Exporter turns records into downloadable documents.
type Exporter interface {
	Spreadsheet(ctx context.Context, records []model.Registration) (export.Artifact, error)
	PDF(ctx context.Context, records []model.Registration) (export.Artifact, error)
}

// ContextManager reads what the authentication middleware stored in the request.
type ContextManager interface {
	GetSessionIDFromContext(ctx context.Context) (string, bool)
	GetIdentityFromContext(ctx context.Context) (model.Identity, bool)
}

// Handler serves every page of the application.
type Handler struct {
	sessions       SessionController
	exporter       Exporter
	contextManager ContextManager
	cookies        middleware.Cookies
	views          *views
	organization   string
	logger         *logger.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a Handler. organization is the name shown on every page.
func New(
	sessions SessionController,
	exporter Exporter,
	contextManager ContextManager,
	cookies middleware.Cookies,
	organization string,
	logger *logger.Logger,
) (*Handler, error) {
	v, err := parseViews()
	if err != nil {
		return nil, err
	}

	return &Handler{
		sessions:       sessions,
		exporter:       exporter,
		contextManager: contextManager,
		cookies:        cookies,
		views:          v,
		organization:   organization,
		logger:         logger,
		closing:        make(chan struct{}),
	}, nil
}

// Close ends open event streams so the server can shut down.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

func (h *Handler) sessionID(r *http.Request) string {
	sid, _ := h.contextManager.GetSessionIDFromContext(r.Context())
	return sid
}

// home sends the browser back to the page of its current view.
func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
