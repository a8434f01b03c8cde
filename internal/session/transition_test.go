package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/membership-server/internal/model"
)

var (
	anon  = &model.Identity{ID: "anon-1", Anonymous: true, TokenID: "t1"}
	admin = &model.Identity{ID: "admin-1", Email: "admin@example.ma", TokenID: "t2"}
	other = &model.Identity{ID: "admin-2", Email: "other@example.ma", TokenID: "t3"}
)

func apply(t *testing.T, s State, events ...Event) State {
	t.Helper()
	for _, e := range events {
		var err error
		s, err = Transition(s, e)
		require.NoError(t, err, "event %s", e.Type)
	}
	return s
}

func TestTransition_FullPath(t *testing.T) {
	s := Initial()
	assert.Equal(t, ViewForm, s.View)
	assert.Equal(t, SubmitIdle, s.Submit)

	s = apply(t, s, Event{Type: EventIdentityChanged, Identity: anon})
	assert.Equal(t, ViewForm, s.View)
	assert.True(t, s.Identity.Anonymous)

	s = apply(t, s, Event{Type: EventOpenLogin})
	assert.Equal(t, ViewLogin, s.View)

	s = apply(t, s, Event{Type: EventLoginFailed})
	assert.Equal(t, ViewLogin, s.View)
	assert.Equal(t, MsgInvalidCredentials, s.LoginError)

	s = apply(t, s, Event{Type: EventLoginSucceeded, Identity: admin})
	assert.Equal(t, ViewDashboard, s.View)
	assert.Empty(t, s.LoginError)
	assert.True(t, s.WantsRecords())

	s = apply(t, s, Event{Type: EventAccessDenied})
	assert.Equal(t, ViewDashboard, s.View)
	assert.True(t, s.AccessDenied)
	assert.False(t, s.WantsRecords())

	s = apply(t, s, Event{Type: EventLogout})
	assert.Equal(t, ViewForm, s.View)
	assert.False(t, s.AccessDenied)
	assert.Nil(t, s.Identity)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	s := Initial()
	_ = apply(t, s, Event{Type: EventOpenLogin})
	assert.Equal(t, ViewForm, s.View)
}

func TestTransition_StaleEvents(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "login result on form", state: Initial(), event: Event{Type: EventLoginFailed}},
		{name: "login success on form", state: Initial(), event: Event{Type: EventLoginSucceeded, Identity: admin}},
		{name: "cancel on form", state: Initial(), event: Event{Type: EventCancelLogin}},
		{name: "open login from dashboard", state: State{View: ViewDashboard, Identity: admin}, event: Event{Type: EventOpenLogin}},
		{name: "logout on login", state: State{View: ViewLogin}, event: Event{Type: EventLogout}},
		{name: "access denied on form", state: Initial(), event: Event{Type: EventAccessDenied}},
		{name: "submit result without pending", state: Initial(), event: Event{Type: EventSubmitSucceeded}},
		{name: "submit failure without pending", state: Initial(), event: Event{Type: EventSubmitFailed}},
		{name: "submit on login", state: State{View: ViewLogin}, event: Event{Type: EventSubmitStarted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.state, tt.event)
			require.ErrorIs(t, err, ErrStaleEvent)
			assert.Equal(t, tt.state, got)
		})
	}
}

func TestTransition_IdentityChanged(t *testing.T) {
	t.Run("credentialed identity on form is only recorded", func(t *testing.T) {
		s := apply(t, Initial(), Event{Type: EventIdentityChanged, Identity: admin})
		assert.Equal(t, ViewForm, s.View)
		assert.Equal(t, admin.ID, s.Identity.ID)
	})

	t.Run("credentialed identity on login enters dashboard", func(t *testing.T) {
		s := apply(t, Initial(), Event{Type: EventOpenLogin}, Event{Type: EventLoginFailed},
			Event{Type: EventIdentityChanged, Identity: admin})
		assert.Equal(t, ViewDashboard, s.View)
		assert.Empty(t, s.LoginError)
	})

	t.Run("different admin clears access denied", func(t *testing.T) {
		s := State{View: ViewDashboard, Identity: admin, AccessDenied: true, Submit: SubmitIdle}
		s = apply(t, s, Event{Type: EventIdentityChanged, Identity: other})
		assert.False(t, s.AccessDenied)
		assert.Equal(t, other.ID, s.Identity.ID)
	})

	t.Run("same admin keeps access denied", func(t *testing.T) {
		s := State{View: ViewDashboard, Identity: admin, AccessDenied: true, Submit: SubmitIdle}
		renewed := *admin
		renewed.TokenID = "t9"
		s = apply(t, s, Event{Type: EventIdentityChanged, Identity: &renewed})
		assert.True(t, s.AccessDenied)
	})

	t.Run("anonymous identity on dashboard sets notice", func(t *testing.T) {
		s := State{View: ViewDashboard, Identity: admin, Submit: SubmitIdle}
		s = apply(t, s, Event{Type: EventIdentityChanged, Identity: anon})
		assert.Equal(t, ViewDashboard, s.View)
		assert.Equal(t, MsgSessionExpired, s.Notice)
		assert.False(t, s.WantsRecords())
	})

	t.Run("missing identity is rejected", func(t *testing.T) {
		_, err := Transition(Initial(), Event{Type: EventIdentityChanged})
		require.Error(t, err)
	})
}

func TestTransition_IdentityAbsent(t *testing.T) {
	s := State{View: ViewDashboard, Identity: admin, Submit: SubmitIdle}
	s = apply(t, s, Event{Type: EventIdentityAbsent})
	assert.Equal(t, ViewDashboard, s.View)
	assert.Nil(t, s.Identity)
	assert.Equal(t, MsgSessionExpired, s.Notice)

	s = apply(t, s, Event{Type: EventIdentityChanged, Identity: anon})
	assert.Equal(t, MsgSessionExpired, s.Notice, "notice survives the anonymous identity")

	form := apply(t, State{View: ViewForm, Identity: anon, Submit: SubmitIdle}, Event{Type: EventIdentityAbsent})
	assert.Empty(t, form.Notice)
}

func TestTransition_SubmitStartedAt(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s := apply(t, Initial(), Event{Type: EventSubmitStarted, At: at})
	assert.Equal(t, at, s.SubmitStartedAt)

	assert.Zero(t, apply(t, s, Event{Type: EventSubmitSucceeded}).SubmitStartedAt)
	assert.Zero(t, apply(t, s, Event{Type: EventSubmitFailed}).SubmitStartedAt)
}

func TestTransition_LoginSucceededWithoutAccount(t *testing.T) {
	s := apply(t, Initial(), Event{Type: EventOpenLogin})

	for _, identity := range []*model.Identity{nil, anon} {
		got := apply(t, s, Event{Type: EventLoginSucceeded, Identity: identity})
		assert.Equal(t, ViewLogin, got.View)
		assert.Equal(t, MsgInvalidCredentials, got.LoginError)
	}
}

func TestTransition_Subscription(t *testing.T) {
	s := State{View: ViewDashboard, Identity: admin, Submit: SubmitIdle}

	s = apply(t, s, Event{Type: EventSubscriptionFailed})
	assert.Equal(t, MsgSubscriptionFailed, s.Notice)
	assert.True(t, s.WantsRecords())

	s = apply(t, s, Event{Type: EventSubscriptionRestore})
	assert.Empty(t, s.Notice)
}

func TestTransition_Submission(t *testing.T) {
	form := model.RegistrationForm{FullName: "Ali"}
	fieldErrs := []model.FieldError{{Field: "cnie", Message: "x"}}

	t.Run("invalid keeps values and errors", func(t *testing.T) {
		s := apply(t, Initial(), Event{Type: EventSubmitInvalid, Form: form, Errors: fieldErrs})
		assert.Equal(t, SubmitIdle, s.Submit)
		assert.Equal(t, form, s.Form)
		assert.Equal(t, "x", s.FieldError("cnie"))
	})

	t.Run("success clears form", func(t *testing.T) {
		s := apply(t, Initial(),
			Event{Type: EventSubmitInvalid, Form: form, Errors: fieldErrs},
			Event{Type: EventSubmitStarted, Form: form})
		assert.Equal(t, SubmitPending, s.Submit)
		assert.Empty(t, s.FormErrors)

		s = apply(t, s, Event{Type: EventSubmitSucceeded})
		assert.Equal(t, SubmitSuccess, s.Submit)
		assert.True(t, s.Form.IsZero())

		s = apply(t, s, Event{Type: EventSubmitReset})
		assert.Equal(t, SubmitIdle, s.Submit)
	})

	t.Run("failure keeps form", func(t *testing.T) {
		s := apply(t, Initial(), Event{Type: EventSubmitStarted, Form: form}, Event{Type: EventSubmitFailed})
		assert.Equal(t, SubmitError, s.Submit)
		assert.Equal(t, MsgSubmitFailed, s.Notice)
		assert.Equal(t, form, s.Form)

		s = apply(t, s, Event{Type: EventSubmitStarted, Form: form})
		assert.Equal(t, SubmitPending, s.Submit)
		assert.Empty(t, s.Notice)
	})

	t.Run("in flight", func(t *testing.T) {
		s := apply(t, Initial(), Event{Type: EventSubmitStarted, Form: form})
		for _, typ := range []EventType{EventSubmitStarted, EventSubmitInvalid, EventSubmitReset} {
			_, err := Transition(s, Event{Type: typ, Form: form})
			require.ErrorIs(t, err, model.ErrSubmissionInFlight, "event %s", typ)
		}
	})
}
