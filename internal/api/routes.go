package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router. health may be nil in tests; the
// endpoint is then omitted.
func SetupRoutes(h *Handlers, health *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
	}

	// Gateway callbacks authenticate with the shared-secret token, not the
	// API middleware.
	r.Post("/webhooks/sms", h.HandleSMSWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/batch", h.HandleGetBatch)
		r.Post("/batch", h.HandleCommitBatch)

		r.Post("/loop", h.HandleLoop)

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/run", h.HandleSchedulerRun)
			r.Get("/preview", h.HandleSchedulerPreview)
		})
	})

	return r
}
