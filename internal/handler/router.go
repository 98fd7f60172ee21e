package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/artifact"
)

// RouterConfig holds what NewRouter needs beyond the event handler.
type RouterConfig struct {
	Health            Pinger
	Artifacts         artifact.Store
	Metrics           http.Handler
	CORSOrigins       []string
	RegisterRateLimit int
}

// NewRouter builds the full HTTP surface.
func NewRouter(h *EventHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)                  // structured access log
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(Identity)

	r.Get("/health", HealthCheck(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Artifacts != nil {
		r.With(RequireIdentity).Get("/id-cards/*", ServeArtifact(cfg.Artifacts))
	}

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.With(RequireIdentity, RateLimit(cfg.RegisterRateLimit)).Post("/{id}/register", h.Register)
		r.With(RequireIdentity).Get("/{id}/registrations", h.ListRegistrations)
	})

	r.With(RequireIdentity).Get("/me/registrations", h.MyRegistrations)
	r.Patch("/registrations/{id}/status", h.UpdateRegistrationStatus)

	return r
}
