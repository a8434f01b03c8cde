// Package metrics exposes Prometheus collectors for registrations, logins,
// exports and live dashboard scopes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "membership"

// Failure reasons for registration submissions.
const (
	ReasonValidation = "validation"
	ReasonStore      = "store"
	ReasonIdentity   = "identity"
)

// Login outcomes.
const (
	LoginSucceeded = "succeeded"
	LoginFailed    = "failed"
	LoginError     = "error"
)

// Metrics holds the application collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	registrationsCreated prometheus.Counter
	registrationFailures *prometheus.CounterVec
	logins               *prometheus.CounterVec
	exports              *prometheus.CounterVec
	activeScopes         prometheus.Gauge
}

// New creates the collectors together with Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		registrationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_created_total",
			Help:      "Number of member registrations stored.",
		}),
		registrationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_failures_total",
			Help:      "Number of rejected or failed registration submissions.",
		}, []string{"reason"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_logins_total",
			Help:      "Number of admin sign-in attempts by outcome.",
		}, []string{"outcome"}),
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Number of produced exports by format.",
		}, []string{"format"}),
		activeScopes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_scopes_active",
			Help:      "Number of live dashboard subscriptions.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RegistrationCreated() {
	if m == nil {
		return
	}
	m.registrationsCreated.Inc()
}

func (m *Metrics) RegistrationFailed(reason string) {
	if m == nil {
		return
	}
	m.registrationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ExportProduced(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Inc()
}

func (m *Metrics) ScopeAcquired() {
	if m == nil {
		return
	}
	m.activeScopes.Inc()
}

func (m *Metrics) ScopeReleased() {
	if m == nil {
		return
	}
	m.activeScopes.Dec()
}
