package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all admin API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.SaveSettings)

		r.Get("/status", h.GetStatus)
		r.Post("/connection/test", h.TestConnection)

		r.Post("/conversion-actions", h.CreateConversionAction)
		r.Get("/conversion-actions/{id}", h.GetConversionAction)

		r.Post("/conversions", h.IngestConversions)

		r.Get("/logs", h.GetDiagLog)
		r.Delete("/logs", h.ClearDiagLog)
	})

	return r
}
