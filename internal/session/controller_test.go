package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/repository/memory"
	"github.com/dtroode/membership-server/internal/service"
	"github.com/dtroode/membership-server/internal/testutil"
	"github.com/dtroode/membership-server/internal/token"
	"github.com/dtroode/membership-server/internal/validation"
)

const (
	adminEmail    = "admin@example.ma"
	adminPassword = "correct-horse"
	userEmail     = "user@example.ma"
)

type harness struct {
	ctrl     *Controller
	auth     *service.Auth
	store    *memory.RegistrationStore
	sessions *memory.SessionStore
}

type gatedRegistrar struct {
	Registrar
	started chan struct{}
	release chan struct{}
}

func (g *gatedRegistrar) Submit(ctx context.Context, form model.RegistrationForm, identity model.Identity, userAgent string) (model.Registration, error) {
	close(g.started)
	<-g.release
	return g.Registrar.Submit(ctx, form, identity, userAgent)
}

func newHarness(t *testing.T, wrap func(Registrar) Registrar) *harness {
	t.Helper()
	ctx := context.Background()
	log := testutil.MakeNoopLogger()

	accounts := memory.NewAccountStore()
	store := memory.NewRegistrationStore(accounts)
	sessions := memory.NewSessionStore()
	auth := service.NewAuth(accounts, token.NewJWT("test-secret", time.Hour), memory.NewRevocationList(), log, nil)

	_, err := auth.CreateAccount(ctx, adminEmail, adminPassword, model.RoleAdmin)
	require.NoError(t, err)
	_, err = auth.CreateAccount(ctx, userEmail, adminPassword, model.RoleNone)
	require.NoError(t, err)

	v, err := validation.New()
	require.NoError(t, err)
	var registrar Registrar = service.NewRegistration(store, v, log, nil)
	if wrap != nil {
		registrar = wrap(registrar)
	}

	ctrl := NewController(sessions, auth, registrar, store, log, nil, Options{
		IdleTTL:    time.Minute,
		RetryAfter: time.Nanosecond,
	})
	t.Cleanup(func() { _ = ctrl.Close() })

	return &harness{ctrl: ctrl, auth: auth, store: store, sessions: sessions}
}

func validForm() model.RegistrationForm {
	return model.RegistrationForm{
		FullName:   "محمد العلوي",
		CNIE:       "AB123456",
		Phone:      "0612345678",
		Email:      "m.alaoui@example.ma",
		Region:     model.Regions[0],
		Province:   "طنجة",
		City:       "طنجة",
		Profession: "أستاذ",
	}
}

func (h *harness) login(t *testing.T, sid, email string) Result {
	t.Helper()
	ctx := context.Background()
	_, err := h.ctrl.OpenLogin(ctx, sid)
	require.NoError(t, err)
	res, err := h.ctrl.Login(ctx, sid, email, adminPassword)
	require.NoError(t, err)
	return res
}

func TestController_InitialState(t *testing.T) {
	h := newHarness(t, nil)

	st, snap, err := h.ctrl.View(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, Initial(), st)
	assert.False(t, snap.Ready)
	assert.Zero(t, h.ctrl.ActiveScopes())
}

func TestController_IdentityAbsent(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.ctrl.IdentityAbsent(context.Background(), "sid")
	require.NoError(t, err)

	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.State.Identity)
	assert.True(t, res.State.Identity.Anonymous)
	assert.Equal(t, "sid", res.State.Identity.SessionID)
	assert.Equal(t, ViewForm, res.State.View)

	resolved, err := h.auth.Resolve(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.State.Identity.ID, resolved.ID)
}

func TestController_IdentityAbsentOnDashboard(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.login(t, "sid", adminEmail)
	require.Equal(t, 1, h.ctrl.ActiveScopes())

	res, err := h.ctrl.IdentityAbsent(ctx, "sid")
	require.NoError(t, err)

	assert.Equal(t, ViewDashboard, res.State.View)
	require.NotNil(t, res.State.Identity)
	assert.True(t, res.State.Identity.Anonymous)
	assert.Equal(t, MsgSessionExpired, res.State.Notice)
	assert.Zero(t, h.ctrl.ActiveScopes())

	st, _, err := h.ctrl.View(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, MsgSessionExpired, st.Notice)
}

func (h *harness) seed(t *testing.T, sid string, st State) {
	t.Helper()
	data, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, h.sessions.Set(context.Background(), sid, data, time.Minute))
}

func TestController_AbandonedSubmission(t *testing.T) {
	ctx := context.Background()

	t.Run("stale pending submission is reported failed", func(t *testing.T) {
		h := newHarness(t, nil)
		h.seed(t, "sid", State{
			View:            ViewForm,
			Submit:          SubmitPending,
			SubmitStartedAt: time.Now().Add(-time.Hour),
			Form:            validForm(),
		})

		st, _, err := h.ctrl.View(ctx, "sid")
		require.NoError(t, err)
		assert.Equal(t, SubmitError, st.Submit)
		assert.Equal(t, MsgSubmitFailed, st.Notice)
		assert.Equal(t, validForm(), st.Form)

		res, err := h.ctrl.Submit(ctx, "sid", validForm(), "")
		require.NoError(t, err)
		assert.Equal(t, SubmitSuccess, res.State.Submit)
		assert.Equal(t, 1, h.store.Len())
	})

	t.Run("pending state without a start time can be reset", func(t *testing.T) {
		h := newHarness(t, nil)
		h.seed(t, "sid", State{View: ViewForm, Submit: SubmitPending, Form: validForm()})

		st, err := h.ctrl.ResetSubmission(ctx, "sid")
		require.NoError(t, err)
		assert.Equal(t, SubmitIdle, st.Submit)
	})

	t.Run("recent pending submission is still in flight", func(t *testing.T) {
		h := newHarness(t, nil)
		h.seed(t, "sid", State{
			View:            ViewForm,
			Submit:          SubmitPending,
			SubmitStartedAt: time.Now(),
			Form:            validForm(),
		})

		_, err := h.ctrl.Submit(ctx, "sid", validForm(), "")
		require.ErrorIs(t, err, model.ErrSubmissionInFlight)
	})
}

func TestController_SubmitValid(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.ctrl.Submit(ctx, "sid", validForm(), "Mozilla/5.0")
	require.NoError(t, err)

	assert.Equal(t, SubmitSuccess, res.State.Submit)
	assert.True(t, res.State.Form.IsZero())
	assert.NotEmpty(t, res.Token, "an anonymous identity is established on demand")
	assert.Equal(t, 1, h.store.Len())

	st, err := h.ctrl.ResetSubmission(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, SubmitIdle, st.Submit)
}

func TestController_SubmitInvalid(t *testing.T) {
	h := newHarness(t, nil)

	form := validForm()
	form.Phone = "12345"
	form.CNIE = "AB-12"

	res, err := h.ctrl.Submit(context.Background(), "sid", form, "")

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, SubmitIdle, res.State.Submit)
	assert.Equal(t, form.Phone, res.State.Form.Phone)
	assert.NotEmpty(t, res.State.FieldError("phone"))
	assert.NotEmpty(t, res.State.FieldError("cnie"))
	assert.Zero(t, h.store.Len())
}

func TestController_SubmitStoreFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.FailCreates(errors.New("unavailable"))

	res, err := h.ctrl.Submit(context.Background(), "sid", validForm(), "")
	require.NoError(t, err)
	assert.Equal(t, SubmitError, res.State.Submit)
	assert.Equal(t, MsgSubmitFailed, res.State.Notice)
	assert.Equal(t, validForm(), res.State.Form)
}

func TestController_SubmitOutsideForm(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ctrl.OpenLogin(ctx, "sid")
	require.NoError(t, err)

	res, err := h.ctrl.Submit(ctx, "sid", validForm(), "")
	require.NoError(t, err)
	assert.Equal(t, ViewLogin, res.State.View)
	assert.Zero(t, h.store.Len())
}

func TestController_SubmitInFlight(t *testing.T) {
	gate := &gatedRegistrar{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(r Registrar) Registrar {
		gate.Registrar = r
		return gate
	})
	ctx := context.Background()

	done := make(chan Result, 1)
	go func() {
		res, _ := h.ctrl.Submit(ctx, "sid", validForm(), "")
		done <- res
	}()
	<-gate.started

	st, err := h.ctrl.State(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, SubmitPending, st.Submit)

	_, err = h.ctrl.Submit(ctx, "sid", validForm(), "")
	require.ErrorIs(t, err, model.ErrSubmissionInFlight)

	close(gate.release)
	res := <-done
	assert.Equal(t, SubmitSuccess, res.State.Submit)
	assert.Equal(t, 1, h.store.Len())
}

func TestController_LateSubmitResult(t *testing.T) {
	gate := &gatedRegistrar{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(r Registrar) Registrar {
		gate.Registrar = r
		return gate
	})
	ctx := context.Background()

	done := make(chan Result, 1)
	go func() {
		res, _ := h.ctrl.Submit(ctx, "sid", validForm(), "")
		done <- res
	}()
	<-gate.started

	_, err := h.ctrl.OpenLogin(ctx, "sid")
	require.NoError(t, err)

	close(gate.release)
	res := <-done
	assert.Equal(t, ViewLogin, res.State.View)
	assert.Equal(t, SubmitIdle, res.State.Submit)
	assert.True(t, res.State.Form.IsZero())
}

func TestController_LoginFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ctrl.OpenLogin(ctx, "sid")
	require.NoError(t, err)

	res, err := h.ctrl.Login(ctx, "sid", adminEmail, "wrong-password")
	require.NoError(t, err)
	assert.Equal(t, ViewLogin, res.State.View)
	assert.Equal(t, MsgInvalidCredentials, res.State.LoginError)
	assert.Empty(t, res.Token)

	res, err = h.ctrl.Login(ctx, "sid", "nobody@example.ma", adminPassword)
	require.NoError(t, err)
	assert.Equal(t, MsgInvalidCredentials, res.State.LoginError)

	res, err = h.ctrl.Login(ctx, "sid", adminEmail, adminPassword)
	require.NoError(t, err)
	assert.Equal(t, ViewDashboard, res.State.View)
	assert.Empty(t, res.State.LoginError)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, adminEmail, res.State.Identity.Email)
	assert.Equal(t, 1, h.ctrl.ActiveScopes())

	_, err = h.store.Create(ctx, model.NewRegistration(validForm(), "uid", ""))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, snap, err := h.ctrl.View(ctx, "sid")
		return err == nil && snap.Ready && len(snap.Records) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestController_LoginIgnoredOutsideLoginView(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.ctrl.Login(context.Background(), "sid", adminEmail, adminPassword)
	require.NoError(t, err)
	assert.Equal(t, ViewForm, res.State.View)
	assert.Empty(t, res.Token)
}

func TestController_AccessDenied(t *testing.T) {
	h := newHarness(t, nil)

	res := h.login(t, "sid", userEmail)
	assert.Equal(t, ViewDashboard, res.State.View)
	assert.True(t, res.State.AccessDenied)
	assert.Zero(t, h.ctrl.ActiveScopes())
	assert.Zero(t, h.store.Subscribers())

	out, err := h.ctrl.Logout(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, ViewForm, out.State.View)
	assert.False(t, out.State.AccessDenied)
}

func TestController_Logout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.login(t, "sid", adminEmail)
	require.Equal(t, 1, h.store.Subscribers())

	out, err := h.ctrl.Logout(ctx, "sid")
	require.NoError(t, err)

	assert.Equal(t, ViewForm, out.State.View)
	require.NotNil(t, out.State.Identity)
	assert.True(t, out.State.Identity.Anonymous)
	assert.NotEmpty(t, out.Token)
	assert.Zero(t, h.ctrl.ActiveScopes())
	assert.Zero(t, h.store.Subscribers())

	_, err = h.auth.Resolve(ctx, res.Token)
	require.ErrorIs(t, err, model.ErrTokenRevoked)
}

func TestController_ObserveIdentity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.login(t, "first", adminEmail)
	identity := *res.Identity

	st, err := h.ctrl.ObserveIdentity(ctx, "second", identity)
	require.NoError(t, err)
	assert.Equal(t, ViewForm, st.View, "a signed-in identity alone never leaves the form")
	assert.Equal(t, 1, h.ctrl.ActiveScopes())

	_, err = h.ctrl.OpenLogin(ctx, "second")
	require.NoError(t, err)
	st, err = h.ctrl.ObserveIdentity(ctx, "second", identity)
	require.NoError(t, err)
	assert.Equal(t, ViewLogin, st.View, "unchanged identity does not move the view")

	renewed := identity
	renewed.TokenID = "other-token"
	st, err = h.ctrl.ObserveIdentity(ctx, "second", renewed)
	require.NoError(t, err)
	assert.Equal(t, ViewDashboard, st.View)
	assert.Equal(t, 2, h.ctrl.ActiveScopes())
}

func TestController_SubscriptionFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.login(t, "sid", adminEmail)
	_, err := h.store.Create(ctx, model.NewRegistration(validForm(), "uid", ""))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		scope, ok := h.ctrl.Scope("sid")
		return ok && len(scope.Snapshot().Records) == 1
	}, time.Second, 10*time.Millisecond)

	h.store.FailSubscriptions(errors.New("listener lost"))

	require.Eventually(t, func() bool {
		st, err := h.ctrl.State(ctx, "sid")
		return err == nil && st.Notice == MsgSubscriptionFailed
	}, time.Second, 10*time.Millisecond)

	scope, ok := h.ctrl.Scope("sid")
	require.True(t, ok, "stale records stay visible")
	assert.Len(t, scope.Snapshot().Records, 1)

	st, snap, err := h.ctrl.View(ctx, "sid")
	require.NoError(t, err)
	assert.Empty(t, st.Notice)
	assert.Len(t, snap.Records, 1)
	assert.Equal(t, 1, h.store.Subscribers())
}

func TestController_ReapIdleScopes(t *testing.T) {
	h := newHarness(t, nil)

	h.login(t, "idle", adminEmail)
	h.login(t, "watched", adminEmail)
	require.Equal(t, 2, h.ctrl.ActiveScopes())

	watched, ok := h.ctrl.Scope("watched")
	require.True(t, ok)
	detach := watched.Attach()
	defer detach()

	h.ctrl.now = func() time.Time { return time.Now().Add(time.Hour) }

	assert.Equal(t, 1, h.ctrl.reap())
	_, ok = h.ctrl.Scope("idle")
	assert.False(t, ok)
	_, ok = h.ctrl.Scope("watched")
	assert.True(t, ok)
	assert.Equal(t, 1, h.store.Subscribers())
}

func TestController_Run(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, time.Millisecond) }()

	cancel()
	require.NoError(t, <-done)
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, nil)

	h.login(t, "a", adminEmail)
	h.login(t, "b", adminEmail)
	require.Equal(t, 2, h.store.Subscribers())

	require.NoError(t, h.ctrl.Close())
	require.NoError(t, h.ctrl.Close())
	assert.Zero(t, h.store.Subscribers())
	assert.Zero(t, h.ctrl.ActiveScopes())

	st, _, err := h.ctrl.View(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, ViewDashboard, st.View)
	assert.Zero(t, h.ctrl.ActiveScopes(), "closed controllers do not subscribe")
}

func TestController_CorruptStateResets(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.sessions.Set(ctx, "sid", []byte("{not json"), time.Minute))

	st, err := h.ctrl.State(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, Initial(), st)
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex

	unlock := k.Lock("a")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		u := k.Lock("a")
		u()
	}()

	other := k.Lock("b")
	other()

	select {
	case <-acquired:
		t.Fatal("same key acquired twice")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	assert.Empty(t, k.locks)
}
