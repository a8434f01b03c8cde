// Package session drives which screen a browser session sees.
//
// The view graph is a pure function of (State, Event). The Controller owns
// persistence of that state, the network calls that produce events and the
// lifetime of the live dashboard subscription.
package session

import (
	"time"

	"github.com/dtroode/membership-server/internal/model"
)

// View is the screen rendered for a session.
type View string

const (
	ViewForm      View = "form"
	ViewLogin     View = "login"
	ViewDashboard View = "dashboard"
)

// SubmitStatus is the progress of the registration form.
type SubmitStatus string

const (
	SubmitIdle    SubmitStatus = "idle"
	SubmitPending SubmitStatus = "pending"
	SubmitSuccess SubmitStatus = "success"
	SubmitError   SubmitStatus = "error"
)

// User-facing messages.
const (
	MsgInvalidCredentials = "البريد الإلكتروني أو كلمة السر غير صحيحة"
	MsgSubmitFailed       = "حدث خطأ في الاتصال. حاول مرة أخرى."
	MsgSubscriptionFailed = "تعذر تحديث البيانات حالياً، المعطيات المعروضة قد لا تكون محينة."
	MsgSessionExpired     = "انتهت صلاحية الجلسة، يرجى تسجيل الخروج ثم الدخول من جديد."
)

// State is everything the server remembers about one browser session.
type State struct {
	View            View                   `json:"view"`
	AccessDenied    bool                   `json:"access_denied,omitempty"`
	Identity        *model.Identity        `json:"identity,omitempty"`
	Submit          SubmitStatus           `json:"submit"`
	SubmitStartedAt time.Time              `json:"submit_started_at,omitzero"`
	Form            model.RegistrationForm `json:"form"`
	FormErrors      []model.FieldError     `json:"form_errors,omitempty"`
	LoginError      string                 `json:"login_error,omitempty"`
	Notice          string                 `json:"notice,omitempty"`
}

// Initial is the state of a session that has not done anything yet.
func Initial() State {
	return State{View: ViewForm, Submit: SubmitIdle}
}

// Credentialed reports whether the session identity is a signed-in account.
func (s State) Credentialed() bool {
	return s.Identity != nil && !s.Identity.Anonymous
}

// WantsRecords reports whether the session should hold a live subscription.
func (s State) WantsRecords() bool {
	return s.View == ViewDashboard && !s.AccessDenied && s.Credentialed()
}

// FieldError returns the validation message for a form field.
func (s State) FieldError(field string) string {
	for _, f := range s.FormErrors {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}
