package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/service"
	"github.com/kozaktomas/facegate/internal/web/handlers"
	"github.com/kozaktomas/facegate/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func (s *Server) setupRoutes(svc *service.Service, gatherer prometheus.Gatherer) {
	// Create handlers
	facesHandler := handlers.NewFacesHandler(svc, s.config.MaxUploadSize, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(svc)
	healthHandler := handlers.NewHealthHandler(svc)

	// Operational endpoints (no auth required)
	s.router.Get("/healthz", healthHandler.Healthz)
	if gatherer != nil {
		s.router.Method("GET", "/metrics", metrics.Handler(gatherer))
	}

	s.router.Route("/api/faces", func(r chi.Router) {
		// Biometric endpoints face badge terminals and mobile clients
		// directly and are rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Handler)

			r.Post("/enroll/{userId}", facesHandler.Enroll)
			r.Post("/verify/{userId}", facesHandler.Verify)
			r.Post("/compare", facesHandler.Compare)
			r.Post("/identify", facesHandler.Identify)
		})

		// Admin surface, guarded by the shared API key when configured.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(s.config.AdminAPIKey))

			r.Get("/identities", identitiesHandler.List)
			r.Get("/identities/{userId}", identitiesHandler.Get)
			r.Delete("/identities/{userId}", identitiesHandler.Delete)
		})
	})
}
