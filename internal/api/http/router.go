package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/newsletter-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Subscriptions *handlers.SubscriptionsHandler
	Newsletters   *handlers.NewslettersHandler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	subscriptions := app.Group("/subscriptions")
	subscriptions.Post("", cfg.Subscriptions.Subscribe)
	subscriptions.Get("/confirm", cfg.Subscriptions.Confirm)

	app.Post("/newsletters", cfg.Newsletters.Publish)
}
