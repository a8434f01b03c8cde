package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dtroode/membership-server/internal/api/http/handler"
	"github.com/dtroode/membership-server/internal/api/http/middleware"
	"github.com/dtroode/membership-server/internal/logger"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

const probeTimeout = 2 * time.Second

// Router wires handlers and middleware into the HTTP routing tree.
type Router struct {
	pages        *handler.Handler
	authenticate *middleware.Authenticate
	metrics      http.Handler
	probes       map[string]Probe
	logger       *logger.Logger
}

// New creates new Router instance. metrics may be nil.
func New(
	pages *handler.Handler,
	authenticate *middleware.Authenticate,
	metrics http.Handler,
	probes map[string]Probe,
	logger *logger.Logger,
) *Router {
	return &Router{
		pages:        pages,
		authenticate: authenticate,
		metrics:      metrics,
		probes:       probes,
		logger:       logger,
	}
}

// Register builds the routing tree. Operational endpoints bypass the session
// middleware; every page runs with an established session and identity.
func (r *Router) Register() http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.NewLogging(r.logger).Handler)
	mux.Use(chimw.Recoverer)

	mux.Get("/healthz", r.health)
	if r.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", r.metrics)
	}

	mux.Group(func(s chi.Router) {
		s.Use(r.authenticate.Handler)

		s.Get("/", r.pages.Index)
		s.Post("/register", r.pages.Register)
		s.Post("/register/reset", r.pages.ResetRegistration)
		s.Post("/login/open", r.pages.OpenLogin)
		s.Post("/login/cancel", r.pages.CancelLogin)
		s.Post("/login", r.pages.Login)
		s.Post("/logout", r.pages.Logout)

		s.Route("/dashboard", func(d chi.Router) {
			d.Get("/export.xls", r.pages.ExportSpreadsheet)
			d.Get("/export.pdf", r.pages.ExportPDF)
			d.Get("/events", r.pages.Events)
		})
	})

	return mux
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), probeTimeout)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(r.probes))
	for name, probe := range r.probes {
		if err := probe(ctx); err != nil {
			r.logger.Warn("Health check failed",
				"dependency", name,
				"error", err.Error())
			result[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
