package middleware

import (
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/config"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

// JWTProtected verifies tokens issued by the calling apps. A token bound to
// one app cannot be used against another.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
		SuccessHandler: bindTokenApp,
	})
}

func bindTokenApp(c *fiber.Ctx) error {
	claimApp := tenant.TokenAppID(c)
	if claimApp == "" {
		return c.Next()
	}
	current, _ := c.Locals("app_id").(string)
	if current != "" && current != claimApp {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error:   true,
			Message: "Token was not issued for this app",
		})
	}
	c.Locals("app_id", claimApp)
	return c.Next()
}
