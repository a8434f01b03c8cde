package model

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique entity is created twice.
	ErrAlreadyExists = errors.New("already exists")
	// ErrPermissionDenied is returned when the identity may not read a collection.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked is returned for a session token that was signed out.
	ErrTokenRevoked = errors.New("session token revoked")
	// ErrRendererUnavailable is returned while the document renderer is still starting.
	ErrRendererUnavailable = errors.New("document renderer is not ready")
	// ErrSubmissionInFlight is returned when a session submits twice before the first completes.
	ErrSubmissionInFlight = errors.New("submission already in progress")
)

// FieldError describes why a single form field was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when user input is rejected before any store call.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError creates a ValidationError for the given fields.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return e.Fields[0].Message
}

// For returns the message for field, or an empty string.
func (e *ValidationError) For(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}
