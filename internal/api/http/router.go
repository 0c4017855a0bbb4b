package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/carrydesk/carry-desk/internal/api/http/handlers"
	"github.com/carrydesk/carry-desk/internal/auth"
	"github.com/carrydesk/carry-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Transcripts    *handlers.TranscriptsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	api := app.Group("/api")
	api.Post("/transcripts", cfg.AuthMiddleware.Handle, auth.RequireScope(auth.ScopeTranscriptsWrite), cfg.Transcripts.Save)
	// static segments first, they would otherwise match :user_id
	api.Get("/transcripts/search", cfg.Transcripts.Search)
	api.Get("/transcripts/stats", cfg.Transcripts.Stats)
	api.Get("/transcripts/:user_id", cfg.Transcripts.ListByUser)
	api.Get("/transcript/:ticket_number/:user_id", cfg.Transcripts.Get)
	api.Get("/users/:user_id/stats", cfg.Transcripts.UserStats)
}

// RegisterProbes wires the health and metrics endpoints the bot process
// exposes next to its gateway connection.
func RegisterProbes(app *fiber.App, health *handlers.HealthHandler, metrics *observability.Metrics) {
	app.Get("/health", health.Health)
	app.Get("/health/live", health.Live)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
