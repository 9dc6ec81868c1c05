package middleware

import (
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func CORS(cfg *config.Config) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept, X-App-ID, X-Admin-Token",
		AllowMethods:     "GET, POST, PUT, OPTIONS",
		ExposeHeaders:    "X-Request-ID, X-RateLimit-Remaining, Retry-After",
		MaxAge:           600,
		AllowCredentials: false,
	})
}
