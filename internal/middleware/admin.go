package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/config"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
)

const adminLocal = "admin_id"

// AdminRequired admits safety reviewers: the X-Admin-Token header, or a JWT
// whose email or subject is on the configured admin lists.
func AdminRequired(cfg *config.Config) fiber.Handler {
	adminEmails := parseCSV(cfg.AdminEmails)
	adminUserIDs := parseCSV(cfg.AdminUserIDs)

	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" {
			if subtle.ConstantTimeCompare([]byte(c.Get("X-Admin-Token")), []byte(cfg.AdminToken)) == 1 {
				c.Locals(adminLocal, "admin-token")
				return c.Next()
			}
		}

		claims, err := tenant.Claims(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		email, _ := claims["email"].(string)
		sub, _ := claims["sub"].(string)

		if email != "" && contains(adminEmails, email) {
			c.Locals(adminLocal, email)
			return c.Next()
		}
		if sub != "" && contains(adminUserIDs, sub) {
			c.Locals(adminLocal, sub)
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}

// AdminIdentity returns who AdminRequired admitted, for audit fields.
func AdminIdentity(c *fiber.Ctx) string {
	if id, ok := c.Locals(adminLocal).(string); ok {
		return id
	}
	return ""
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
