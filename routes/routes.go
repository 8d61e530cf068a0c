// Package routes wires the HTTP surface over the orchestration core.
package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/serenova/aicore/handlers"
)

// Handlers bundles the route targets
type Handlers struct {
	Chat        *handlers.ChatHandler
	Orchestrate *handlers.OrchestrateHandler
	Stats       *handlers.StatsHandler
	Health      *handlers.HealthHandler
}

// Setup configures all application routes and middleware
func Setup(h Handlers) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", h.Chat.Complete)
		r.Post("/orchestrate", h.Orchestrate.Run)
		r.Get("/stats", h.Stats.GetStats)
		r.Get("/budget", h.Stats.GetBudget)
	})

	return r
}
