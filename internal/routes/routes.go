package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/config"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	m *metrics.Metrics,
	healthHandler *handlers.HealthHandler,
	safetyHandler *handlers.SafetyHandler,
	reviewHandler *handlers.ReviewHandler,
) {
	// Prometheus scrape endpoint (no tenant, no rate limit)
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api")

	// Health (no tenant required)
	api.Get("/health", healthHandler.Check)

	// Safety endpoints (JWT required, rate limited per app user)
	safety := api.Group("/safety", middleware.JWTProtected(cfg))
	safety.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      userKey,
	}))
	safety.Post("/analyze", safetyHandler.Analyze)
	safety.Post("/messages/check", safetyHandler.CheckMessage)
	safety.Post("/validate", safetyHandler.Validate)
	safety.Get("/resources", safetyHandler.Resources)
	safety.Get("/resources/:id", safetyHandler.Resource)
	safety.Get("/transparency", safetyHandler.Transparency)
	safety.Put("/transparency/:id/ack", safetyHandler.Acknowledge)
	safety.Get("/preferences", safetyHandler.GetPreferences)
	safety.Put("/preferences", safetyHandler.UpdatePreferences)

	// Human review queue (admin required; token holders skip JWT)
	admin := api.Group("/admin", limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), adminAuth(cfg), middleware.AdminRequired(cfg))
	admin.Get("/safety/reviews", reviewHandler.ListCases)
	admin.Put("/safety/reviews/:id", reviewHandler.ActionCase)
}

// adminAuth requires a JWT unless the request carries the admin token.
func adminAuth(cfg *config.Config) fiber.Handler {
	jwtMW := middleware.JWTProtected(cfg)
	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" && c.Get("X-Admin-Token") != "" {
			return c.Next()
		}
		return jwtMW(c)
	}
}

func userKey(c *fiber.Ctx) string {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.IP()
	}
	return tenant.GetAppID(c) + ":" + userID.String()
}
