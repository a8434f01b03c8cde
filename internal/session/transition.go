package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/dtroode/membership-server/internal/model"
)

// ErrStaleEvent is returned for an event the current view does not accept,
// such as a login result arriving after the user went back to the form.
var ErrStaleEvent = errors.New("event does not apply to the current view")

// EventType names something that happened to a session.
type EventType string

const (
	EventOpenLogin           EventType = "open_login"
	EventCancelLogin         EventType = "cancel_login"
	EventLoginSucceeded      EventType = "login_succeeded"
	EventLoginFailed         EventType = "login_failed"
	EventIdentityChanged     EventType = "identity_changed"
	EventIdentityAbsent      EventType = "identity_absent"
	EventAccessDenied        EventType = "access_denied"
	EventSubscriptionFailed  EventType = "subscription_failed"
	EventSubscriptionRestore EventType = "subscription_restored"
	EventLogout              EventType = "logout"
	EventSubmitInvalid       EventType = "submit_invalid"
	EventSubmitStarted       EventType = "submit_started"
	EventSubmitSucceeded     EventType = "submit_succeeded"
	EventSubmitFailed        EventType = "submit_failed"
	EventSubmitReset         EventType = "submit_reset"
)

// Event is an input to Transition. Identity, Form, Errors and At are read only
// by the event types that carry them.
type Event struct {
	Type     EventType
	Identity *model.Identity
	Form     model.RegistrationForm
	Errors   []model.FieldError
	At       time.Time
}

// enterDashboard is the edge taken when a credentialed identity shows up
// outside the form, e.g. a reload with a signed-in cookie.
const enterDashboard = "enter_dashboard"

var viewGraph = fsm.Events{
	{Name: string(EventOpenLogin), Src: []string{string(ViewForm)}, Dst: string(ViewLogin)},
	{Name: string(EventCancelLogin), Src: []string{string(ViewLogin)}, Dst: string(ViewForm)},
	{Name: string(EventLoginSucceeded), Src: []string{string(ViewLogin)}, Dst: string(ViewDashboard)},
	{Name: string(EventLoginFailed), Src: []string{string(ViewLogin)}, Dst: string(ViewLogin)},
	{Name: enterDashboard, Src: []string{string(ViewLogin), string(ViewDashboard)}, Dst: string(ViewDashboard)},
	{Name: string(EventAccessDenied), Src: []string{string(ViewDashboard)}, Dst: string(ViewDashboard)},
	{Name: string(EventSubscriptionFailed), Src: []string{string(ViewDashboard)}, Dst: string(ViewDashboard)},
	{Name: string(EventSubscriptionRestore), Src: []string{string(ViewDashboard)}, Dst: string(ViewDashboard)},
	{Name: string(EventLogout), Src: []string{string(ViewDashboard)}, Dst: string(ViewForm)},
	{Name: string(EventSubmitInvalid), Src: []string{string(ViewForm)}, Dst: string(ViewForm)},
	{Name: string(EventSubmitStarted), Src: []string{string(ViewForm)}, Dst: string(ViewForm)},
	{Name: string(EventSubmitSucceeded), Src: []string{string(ViewForm)}, Dst: string(ViewForm)},
	{Name: string(EventSubmitFailed), Src: []string{string(ViewForm)}, Dst: string(ViewForm)},
	{Name: string(EventSubmitReset), Src: []string{string(ViewForm)}, Dst: string(ViewForm)},
}

// move follows edge from view through the view graph.
func move(view View, edge string) (View, error) {
	machine := fsm.NewFSM(string(view), viewGraph, fsm.Callbacks{})

	err := machine.Event(context.Background(), edge)
	if err != nil {
		var (
			noTransition fsm.NoTransitionError
			invalid      fsm.InvalidEventError
		)
		switch {
		case errors.As(err, &noTransition):
		case errors.As(err, &invalid):
			return view, fmt.Errorf("%s on %s: %w", edge, view, ErrStaleEvent)
		default:
			return view, fmt.Errorf("failed to apply %s: %w", edge, err)
		}
	}

	return View(machine.Current()), nil
}

// Transition returns the state that follows s after e. It never mutates s.
func Transition(s State, e Event) (State, error) {
	next := s

	switch e.Type {
	case EventIdentityAbsent:
		next.Identity = nil
		if s.View == ViewDashboard && s.Credentialed() {
			next.Notice = MsgSessionExpired
		}
		return next, nil

	case EventIdentityChanged:
		if e.Identity == nil {
			return s, errors.New("identity_changed requires an identity")
		}
		identity := *e.Identity
		next.Identity = &identity

		if identity.Anonymous {
			if s.View == ViewDashboard && s.Credentialed() {
				next.Notice = MsgSessionExpired
			}
			return next, nil
		}
		if s.View == ViewForm {
			return next, nil
		}

		view, err := move(s.View, enterDashboard)
		if err != nil {
			return s, err
		}
		next.View = view
		next.LoginError = ""
		if !identity.SameAs(s.Identity) {
			next.AccessDenied = false
			next.Notice = ""
		}
		return next, nil

	case EventLoginSucceeded:
		if e.Identity == nil || e.Identity.Anonymous {
			return Transition(s, Event{Type: EventLoginFailed})
		}
	}

	view, err := move(s.View, string(e.Type))
	if err != nil {
		return s, err
	}
	next.View = view

	switch e.Type {
	case EventOpenLogin, EventCancelLogin:
		next.LoginError = ""
		next.Notice = ""

	case EventLoginSucceeded:
		identity := *e.Identity
		next.Identity = &identity
		next.LoginError = ""
		next.AccessDenied = false
		next.Notice = ""

	case EventLoginFailed:
		next.LoginError = MsgInvalidCredentials

	case EventAccessDenied:
		next.AccessDenied = true

	case EventSubscriptionFailed:
		next.Notice = MsgSubscriptionFailed

	case EventSubscriptionRestore:
		if next.Notice == MsgSubscriptionFailed {
			next.Notice = ""
		}

	case EventLogout:
		next.AccessDenied = false
		next.Identity = nil
		next.Notice = ""
		next.LoginError = ""

	case EventSubmitInvalid:
		if s.Submit == SubmitPending {
			return s, model.ErrSubmissionInFlight
		}
		next.Submit = SubmitIdle
		next.Form = e.Form
		next.FormErrors = e.Errors
		next.Notice = ""

	case EventSubmitStarted:
		if s.Submit == SubmitPending {
			return s, model.ErrSubmissionInFlight
		}
		next.Submit = SubmitPending
		next.SubmitStartedAt = e.At
		next.Form = e.Form
		next.FormErrors = nil
		next.Notice = ""

	case EventSubmitSucceeded:
		if s.Submit != SubmitPending {
			return s, fmt.Errorf("no submission pending: %w", ErrStaleEvent)
		}
		next.Submit = SubmitSuccess
		next.SubmitStartedAt = time.Time{}
		next.Form = model.RegistrationForm{}
		next.FormErrors = nil

	case EventSubmitFailed:
		if s.Submit != SubmitPending {
			return s, fmt.Errorf("no submission pending: %w", ErrStaleEvent)
		}
		next.Submit = SubmitError
		next.SubmitStartedAt = time.Time{}
		next.Notice = MsgSubmitFailed

	case EventSubmitReset:
		if s.Submit == SubmitPending {
			return s, model.ErrSubmissionInFlight
		}
		next.Submit = SubmitIdle
		next.FormErrors = nil
		next.Notice = ""
	}

	return next, nil
}
