package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mssola/useragent"

	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/metrics"
	"github.com/dtroode/membership-server/internal/model"
)

// FormValidator validates a registration form.
type FormValidator interface {
	Struct(s any) error
}

// Registration validates and stores member registrations.
type Registration struct {
	store     model.RegistrationStore
	validator FormValidator
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewRegistration(
	store model.RegistrationStore,
	validator FormValidator,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Registration {
	return &Registration{
		store:     store,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
	}
}

// Validate returns the trimmed form, or a *model.ValidationError describing
// every rejected field.
func (s *Registration) Validate(form model.RegistrationForm) (model.RegistrationForm, error) {
	form.Normalize()
	if err := s.validator.Struct(form); err != nil {
		return form, err
	}
	return form, nil
}

// Submit validates form and stores it under identity. Invalid forms never reach the store.
func (s *Registration) Submit(ctx context.Context, form model.RegistrationForm, identity model.Identity, userAgent string) (model.Registration, error) {
	form, err := s.Validate(form)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			s.metrics.RegistrationFailed(metrics.ReasonValidation)
			s.logger.Debug("Registration service: form rejected",
				"uid", identity.ID,
				"fields", len(vErr.Fields))
		}
		return model.Registration{}, err
	}

	if identity.ID == "" {
		s.metrics.RegistrationFailed(metrics.ReasonIdentity)
		return model.Registration{}, errors.New("registration requires an identity")
	}

	saved, err := s.store.Create(ctx, model.NewRegistration(form, identity.ID, userAgent))
	if err != nil {
		s.metrics.RegistrationFailed(metrics.ReasonStore)
		s.logger.Error("Registration service: failed to store registration",
			"uid", identity.ID,
			"error", err.Error())
		return model.Registration{}, fmt.Errorf("failed to store registration: %w", err)
	}

	s.metrics.RegistrationCreated()
	s.logger.Info("Registration service: registration stored",
		append([]any{
			"id", saved.ID,
			"uid", identity.ID,
			"anonymous", identity.Anonymous,
			"region", saved.Region,
		}, clientAttrs(userAgent)...)...)

	return saved, nil
}

// clientAttrs summarizes a User-Agent header for logs.
func clientAttrs(userAgent string) []any {
	if userAgent == "" {
		return nil
	}
	ua := useragent.New(userAgent)
	browser, version := ua.Browser()
	return []any{
		"browser", browser,
		"browser_version", version,
		"os", ua.OS(),
		"mobile", ua.Mobile(),
		"bot", ua.Bot(),
	}
}
