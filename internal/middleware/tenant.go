package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Paths that don't require tenant identification.
var tenantSkipPaths = []string{
	"/api/health",
	"/metrics",
}

// TenantMiddleware extracts app_id from JWT claims or the X-App-ID header.
func TenantMiddleware(registry *tenant.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()

		// Health and metrics are tenant-agnostic
		for _, skip := range tenantSkipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		// 1. Try JWT claim (already authenticated)
		if token, ok := c.Locals("user").(*jwt.Token); ok {
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if appID, ok := claims["app_id"].(string); ok && appID != "" {
					c.Locals("app_id", appID)
					return c.Next()
				}
			}
		}

		// 2. Try X-App-ID header
		appID := c.Get("X-App-ID")
		if appID != "" {
			if !registry.Exists(appID) {
				return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
					Error:   true,
					Message: "Invalid X-App-ID: " + appID,
				})
			}
			c.Locals("app_id", appID)
			return c.Next()
		}

		// 3. Missing app_id
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "X-App-ID header is required",
		})
	}
}
