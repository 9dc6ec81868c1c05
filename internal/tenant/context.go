package tenant

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrNoClaims = errors.New("no verified token claims in context")

// GetAppID extracts the app_id from Fiber context locals.
func GetAppID(c *fiber.Ctx) string {
	if appID, ok := c.Locals("app_id").(string); ok {
		return appID
	}
	return ""
}

// Claims returns the claims of the verified JWT, if any.
func Claims(c *fiber.Ctx) (jwt.MapClaims, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return nil, ErrNoClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrNoClaims
	}
	return claims, nil
}

// TokenAppID is the app the token was issued for; empty for unbound tokens.
func TokenAppID(c *fiber.Ctx) string {
	claims, err := Claims(c)
	if err != nil {
		return ""
	}
	appID, _ := claims["app_id"].(string)
	return appID
}

// GetUserID extracts the user UUID from the sub claim.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, err := Claims(c)
	if err != nil {
		return uuid.Nil, err
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}
	return uuid.Parse(sub)
}
