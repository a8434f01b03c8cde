package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/metrics"
	"github.com/dtroode/membership-server/internal/model"
)

// Registrar validates and stores registration forms.
type Registrar interface {
	Validate(form model.RegistrationForm) (model.RegistrationForm, error)
	Submit(ctx context.Context, form model.RegistrationForm, identity model.Identity, userAgent string) (model.Registration, error)
}

// Options tune the controller.
type Options struct {
	// IdleTTL is how long session state and unused dashboard scopes are kept.
	IdleTTL time.Duration
	// RetryAfter is the wait before a failed subscription is opened again.
	RetryAfter time.Duration
	// SubmitTimeout is how long a stored submission may stay pending before
	// it is reported as failed, e.g. after a restart mid-submit.
	SubmitTimeout time.Duration
	// Query is passed to every dashboard subscription.
	Query model.Query
}

// Result is the outcome of an operation that may replace the session identity.
type Result struct {
	State State
	// Token is the new signed session token, empty when the identity did not change.
	Token    string
	Identity *model.Identity
}

// Controller applies events to persisted session state, performs the network
// calls around them and owns the dashboard scopes.
type Controller struct {
	sessions   model.SessionStore
	identities model.IdentityProvider
	registrar  Registrar
	store      model.RegistrationStore
	logger     *logger.Logger
	metrics    *metrics.Metrics
	opts       Options
	now        func() time.Time

	locks keyedMutex

	mu     sync.Mutex
	scopes map[string]*Scope
	closed bool
	wg     sync.WaitGroup
}

func NewController(
	sessions model.SessionStore,
	identities model.IdentityProvider,
	registrar Registrar,
	store model.RegistrationStore,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	opts Options,
) *Controller {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 10 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = time.Minute
	}

	return &Controller{
		sessions:   sessions,
		identities: identities,
		registrar:  registrar,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
		now:        time.Now,
		scopes:     make(map[string]*Scope),
	}
}

// State returns the stored state of a session.
func (c *Controller) State(ctx context.Context, sessionID string) (State, error) {
	return c.load(ctx, sessionID)
}

// Apply transitions the session with e. Stale events leave the state unchanged.
func (c *Controller) Apply(ctx context.Context, sessionID string, e Event) (State, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	return c.applyLocked(ctx, sessionID, e)
}

func (c *Controller) OpenLogin(ctx context.Context, sessionID string) (State, error) {
	return c.Apply(ctx, sessionID, Event{Type: EventOpenLogin})
}

func (c *Controller) CancelLogin(ctx context.Context, sessionID string) (State, error) {
	return c.Apply(ctx, sessionID, Event{Type: EventCancelLogin})
}

// ResetSubmission returns the form from the success screen to an empty form.
func (c *Controller) ResetSubmission(ctx context.Context, sessionID string) (State, error) {
	return c.Apply(ctx, sessionID, Event{Type: EventSubmitReset})
}

// ObserveIdentity feeds the identity resolved for a request into the session.
func (c *Controller) ObserveIdentity(ctx context.Context, sessionID string, identity model.Identity) (State, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	st, err := c.load(ctx, sessionID)
	if err != nil {
		return st, err
	}

	if !sameToken(st.Identity, &identity) {
		return c.transitionLocked(ctx, sessionID, st, Event{Type: EventIdentityChanged, Identity: &identity})
	}

	st = c.syncScope(ctx, sessionID, st)
	if err := c.save(ctx, sessionID, st); err != nil {
		return st, err
	}
	return st, nil
}

// IdentityAbsent clears the session identity and establishes an anonymous one.
func (c *Controller) IdentityAbsent(ctx context.Context, sessionID string) (Result, error) {
	st, err := c.Apply(ctx, sessionID, Event{Type: EventIdentityAbsent})
	if err != nil {
		return Result{State: st}, err
	}

	identity, token, err := c.identities.SignInAnonymously(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		c.logger.Error("Session controller: anonymous sign-in failed",
			"session_id", sessionID,
			"error", err.Error())
		return Result{State: st}, fmt.Errorf("failed to sign in anonymously: %w", err)
	}

	st, err = c.Apply(ctx, sessionID, Event{Type: EventIdentityChanged, Identity: &identity})
	return Result{State: st, Token: token, Identity: &identity}, err
}

// Submit validates form and, when valid, stores it under the session identity.
// A *model.ValidationError is returned together with the state holding the
// field messages; store failures are reported through the state only.
func (c *Controller) Submit(ctx context.Context, sessionID string, form model.RegistrationForm, userAgent string) (Result, error) {
	unlock := c.locks.Lock(sessionID)
	st, err := c.load(ctx, sessionID)
	if err != nil {
		unlock()
		return Result{State: st}, err
	}
	if st.View != ViewForm {
		unlock()
		c.logger.Debug("Session controller: submit outside the form ignored",
			"session_id", sessionID,
			"view", st.View)
		return Result{State: st}, nil
	}
	if st.Submit == SubmitPending {
		unlock()
		return Result{State: st}, model.ErrSubmissionInFlight
	}

	clean, err := c.registrar.Validate(form)
	if err != nil {
		defer unlock()
		var vErr *model.ValidationError
		if !errors.As(err, &vErr) {
			return Result{State: st}, err
		}
		next, terr := c.transitionLocked(ctx, sessionID, st, Event{Type: EventSubmitInvalid, Form: clean, Errors: vErr.Fields})
		if terr != nil {
			return Result{State: next}, terr
		}
		return Result{State: next}, err
	}

	st, err = c.transitionLocked(ctx, sessionID, st, Event{Type: EventSubmitStarted, Form: clean, At: c.now()})
	unlock()
	if err != nil {
		return Result{State: st}, err
	}

	// In-flight work outlives a disconnecting client.
	ctx = context.WithoutCancel(ctx)

	var res Result
	identity := st.Identity
	if identity == nil {
		anon, token, err := c.identities.SignInAnonymously(ctx, sessionID)
		if err != nil {
			c.logger.Error("Session controller: anonymous sign-in before submit failed",
				"session_id", sessionID,
				"error", err.Error())
			st, err = c.finishSubmit(ctx, sessionID, nil, EventSubmitFailed)
			return Result{State: st}, err
		}
		identity = &anon
		res.Token = token
		res.Identity = &anon
	}

	outcome := EventSubmitSucceeded
	if _, err := c.registrar.Submit(ctx, clean, *identity, userAgent); err != nil {
		outcome = EventSubmitFailed
	}

	res.State, err = c.finishSubmit(ctx, sessionID, res.Identity, outcome)
	return res, err
}

func (c *Controller) finishSubmit(ctx context.Context, sessionID string, identity *model.Identity, outcome EventType) (State, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	// The submission being finished may be older than SubmitTimeout.
	st, err := c.loadStored(ctx, sessionID)
	if err != nil {
		return st, err
	}
	if identity != nil {
		if next, err := Transition(st, Event{Type: EventIdentityChanged, Identity: identity}); err == nil {
			st = next
		}
	}

	next, err := Transition(st, Event{Type: outcome})
	switch {
	case errors.Is(err, ErrStaleEvent):
		c.logger.Debug("Session controller: late submission result",
			"session_id", sessionID,
			"view", st.View,
			"outcome", outcome)
		next = st
		if next.Submit == SubmitPending {
			next.Submit = SubmitIdle
			next.SubmitStartedAt = time.Time{}
			if outcome == EventSubmitSucceeded {
				next.Form = model.RegistrationForm{}
			}
		}
	case err != nil:
		return st, err
	}

	if err := c.save(ctx, sessionID, next); err != nil {
		return next, err
	}
	return next, nil
}

// Login signs the session in with admin credentials. Every failure yields the
// same generic message on the login view.
func (c *Controller) Login(ctx context.Context, sessionID, email, password string) (Result, error) {
	st, err := c.load(ctx, sessionID)
	if err != nil {
		return Result{State: st}, err
	}
	if st.View != ViewLogin {
		return Result{State: st}, nil
	}

	identity, token, err := c.identities.SignInWithCredentials(context.WithoutCancel(ctx), sessionID, email, password)

	unlock := c.locks.Lock(sessionID)
	defer unlock()

	if err != nil {
		if !errors.Is(err, model.ErrInvalidCredentials) {
			c.logger.Error("Session controller: sign-in failed",
				"session_id", sessionID,
				"error", err.Error())
		}
		st, err := c.applyLocked(ctx, sessionID, Event{Type: EventLoginFailed})
		return Result{State: st}, err
	}

	st, err = c.load(ctx, sessionID)
	if err != nil {
		return Result{State: st}, err
	}
	next, err := Transition(st, Event{Type: EventLoginSucceeded, Identity: &identity})
	if errors.Is(err, ErrStaleEvent) {
		next, err = Transition(st, Event{Type: EventIdentityChanged, Identity: &identity})
	}
	if err != nil {
		return Result{State: st}, err
	}

	next = c.syncScope(ctx, sessionID, next)
	if err := c.save(ctx, sessionID, next); err != nil {
		return Result{State: next}, err
	}
	return Result{State: next, Token: token, Identity: &identity}, nil
}

// Logout revokes the admin token, returns the session to the form and
// establishes a fresh anonymous identity.
func (c *Controller) Logout(ctx context.Context, sessionID string) (Result, error) {
	st, err := c.load(ctx, sessionID)
	if err != nil {
		return Result{State: st}, err
	}
	if st.View != ViewDashboard {
		return Result{State: st}, nil
	}

	ctx = context.WithoutCancel(ctx)
	if st.Identity != nil {
		if err := c.identities.SignOut(ctx, *st.Identity); err != nil {
			c.logger.Warn("Session controller: sign-out failed",
				"session_id", sessionID,
				"error", err.Error())
		}
	}

	st, err = c.Apply(ctx, sessionID, Event{Type: EventLogout})
	if err != nil {
		return Result{State: st}, err
	}

	identity, token, err := c.identities.SignInAnonymously(ctx, sessionID)
	if err != nil {
		c.logger.Error("Session controller: anonymous sign-in after logout failed",
			"session_id", sessionID,
			"error", err.Error())
		return Result{State: st}, nil
	}

	st, err = c.Apply(ctx, sessionID, Event{Type: EventIdentityChanged, Identity: &identity})
	return Result{State: st, Token: token, Identity: &identity}, err
}

// View returns the session state and, on the dashboard, the latest records.
// A missing dashboard scope is acquired again.
func (c *Controller) View(ctx context.Context, sessionID string) (State, Snapshot, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	st, err := c.load(ctx, sessionID)
	if err != nil {
		return st, Snapshot{}, err
	}
	st = c.syncScope(ctx, sessionID, st)
	if err := c.save(ctx, sessionID, st); err != nil {
		return st, Snapshot{}, err
	}

	scope, ok := c.Scope(sessionID)
	if !ok {
		return st, Snapshot{}, nil
	}
	return st, scope.Snapshot(), nil
}

// Scope returns the live dashboard scope of a session.
func (c *Controller) Scope(sessionID string) (*Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.scopes[sessionID]
	return s, ok
}

// ActiveScopes returns the number of live dashboard scopes.
func (c *Controller) ActiveScopes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopes)
}

// Run releases idle dashboard scopes every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := c.reap(); n > 0 {
				c.logger.Debug("Session controller: released idle scopes", "count", n)
			}
		}
	}
}

func (c *Controller) reap() int {
	now := c.now()

	c.mu.Lock()
	candidates := make(map[string]*Scope)
	for sid, s := range c.scopes {
		if s.idle(now, c.opts.IdleTTL) {
			candidates[sid] = s
		}
	}
	c.mu.Unlock()

	released := 0
	for sid, s := range candidates {
		unlock := c.locks.Lock(sid)
		if s.idle(now, c.opts.IdleTTL) && c.dropScope(sid, s) {
			released++
		}
		unlock()
	}
	return released
}

// Close releases every scope and waits for background work to finish.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	scopes := c.scopes
	c.scopes = make(map[string]*Scope)
	c.mu.Unlock()

	for sid, s := range scopes {
		if err := s.Release(); err != nil {
			c.logger.Warn("Session controller: failed to release scope",
				"session_id", sid,
				"error", err.Error())
		}
		c.metrics.ScopeReleased()
	}

	c.wg.Wait()
	return nil
}

func (c *Controller) applyLocked(ctx context.Context, sessionID string, e Event) (State, error) {
	st, err := c.load(ctx, sessionID)
	if err != nil {
		return st, err
	}
	return c.transitionLocked(ctx, sessionID, st, e)
}

func (c *Controller) transitionLocked(ctx context.Context, sessionID string, st State, e Event) (State, error) {
	next, err := Transition(st, e)
	if err != nil {
		if errors.Is(err, ErrStaleEvent) {
			c.logger.Debug("Session controller: stale event ignored",
				"session_id", sessionID,
				"event", e.Type,
				"view", st.View)
			return st, nil
		}
		return st, err
	}

	next = c.syncScope(ctx, sessionID, next)
	if err := c.save(ctx, sessionID, next); err != nil {
		return st, err
	}
	return next, nil
}

// syncScope acquires or releases the dashboard scope so that it exists exactly
// when st wants records. Subscription failures are turned into events on st.
// Callers hold the session lock.
func (c *Controller) syncScope(ctx context.Context, sessionID string, st State) State {
	c.mu.Lock()
	current := c.scopes[sessionID]
	closed := c.closed
	c.mu.Unlock()

	if !st.WantsRecords() || closed {
		if current != nil {
			c.dropScope(sessionID, current)
		}
		return st
	}

	now := c.now()
	if current != nil && !current.belongsTo(st.Identity) {
		c.dropScope(sessionID, current)
		current = nil
	}
	if current != nil && !current.retryDue(now, c.opts.RetryAfter) {
		current.touch(now)
		return st
	}

	var seed []model.Registration
	if current != nil {
		seed = current.Snapshot().Records
	}

	scope, err := acquireScope(ctx, c.store, *st.Identity, c.opts.Query, seed, c.now, func(s *Scope, err error) {
		c.goTracked(func() { c.handleScopeError(sessionID, s, err) })
	})
	if err != nil {
		event := EventSubscriptionFailed
		if errors.Is(err, model.ErrPermissionDenied) {
			event = EventAccessDenied
			if current != nil {
				c.dropScope(sessionID, current)
			}
			c.logger.Info("Session controller: registrations access denied",
				"session_id", sessionID,
				"uid", st.Identity.ID)
		} else {
			c.logger.Error("Session controller: failed to subscribe to registrations",
				"session_id", sessionID,
				"error", err.Error())
		}

		next, terr := Transition(st, Event{Type: event})
		if terr != nil {
			return st
		}
		return next
	}

	if current != nil {
		c.dropScope(sessionID, current)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = scope.Release()
		return st
	}
	c.scopes[sessionID] = scope
	c.mu.Unlock()

	c.metrics.ScopeAcquired()
	c.logger.Debug("Session controller: dashboard scope acquired",
		"session_id", sessionID,
		"uid", st.Identity.ID)

	if next, err := Transition(st, Event{Type: EventSubscriptionRestore}); err == nil {
		st = next
	}
	return st
}

// dropScope releases s and forgets it if it is still the session scope.
func (c *Controller) dropScope(sessionID string, s *Scope) bool {
	c.mu.Lock()
	owned := c.scopes[sessionID] == s
	if owned {
		delete(c.scopes, sessionID)
	}
	c.mu.Unlock()

	if err := s.Release(); err != nil {
		c.logger.Warn("Session controller: failed to release scope",
			"session_id", sessionID,
			"error", err.Error())
	}
	if owned {
		c.metrics.ScopeReleased()
		c.logger.Debug("Session controller: dashboard scope released",
			"session_id", sessionID)
	}
	return owned
}

func (c *Controller) handleScopeError(sessionID string, s *Scope, subErr error) {
	ctx := context.Background()

	unlock := c.locks.Lock(sessionID)
	defer unlock()

	if current, ok := c.Scope(sessionID); !ok || current != s {
		return
	}

	event := EventSubscriptionFailed
	if errors.Is(subErr, model.ErrPermissionDenied) {
		event = EventAccessDenied
		c.dropScope(sessionID, s)
		c.logger.Info("Session controller: registrations access revoked",
			"session_id", sessionID)
	} else {
		c.logger.Error("Session controller: registrations subscription failed",
			"session_id", sessionID,
			"error", subErr.Error())
	}

	st, err := c.load(ctx, sessionID)
	if err != nil {
		c.logger.Error("Session controller: failed to load session",
			"session_id", sessionID,
			"error", err.Error())
		return
	}

	next, err := Transition(st, Event{Type: event})
	if err != nil {
		return
	}
	if err := c.save(ctx, sessionID, next); err != nil {
		c.logger.Error("Session controller: failed to save session",
			"session_id", sessionID,
			"error", err.Error())
	}
}

func (c *Controller) goTracked(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// load returns the session state with an abandoned submission marked failed.
func (c *Controller) load(ctx context.Context, sessionID string) (State, error) {
	st, err := c.loadStored(ctx, sessionID)
	if err != nil {
		return st, err
	}

	if st.Submit == SubmitPending && c.now().Sub(st.SubmitStartedAt) > c.opts.SubmitTimeout {
		c.logger.Warn("Session controller: abandoned submission marked failed",
			"session_id", sessionID,
			"started_at", st.SubmitStartedAt)
		st.Submit = SubmitError
		st.SubmitStartedAt = time.Time{}
		st.Notice = MsgSubmitFailed
	}
	return st, nil
}

func (c *Controller) loadStored(ctx context.Context, sessionID string) (State, error) {
	data, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Initial(), nil
		}
		return Initial(), fmt.Errorf("failed to load session: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil || st.View == "" {
		c.logger.Warn("Session controller: discarding unreadable session state",
			"session_id", sessionID)
		return Initial(), nil
	}
	if st.Submit == "" {
		st.Submit = SubmitIdle
	}
	return st, nil
}

func (c *Controller) save(ctx context.Context, sessionID string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.sessions.Set(ctx, sessionID, data, c.opts.IdleTTL); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func sameToken(a, b *model.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Anonymous == b.Anonymous && a.TokenID == b.TokenID
}
