package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/config"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
)

func withClaims(claims jwt.MapClaims) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user", &jwt.Token{Claims: claims})
		return c.Next()
	}
}

func echoApp(c *fiber.Ctx) error {
	return c.SendString(tenant.GetAppID(c) + "|" + AdminIdentity(c))
}

func do(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestTenantMiddleware(t *testing.T) {
	registry := tenant.NewRegistry()
	registry.Register(&tenant.AppConfig{AppID: "couples"})

	app := fiber.New()
	app.Use(TenantMiddleware(registry))
	app.Get("/api/health", echoApp)
	app.Get("/api/safety/x", echoApp)

	status, _ := do(t, app, "/api/health", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body := do(t, app, "/api/safety/x", map[string]string{"X-App-ID": "couples"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "couples|", body)

	status, _ = do(t, app, "/api/safety/x", map[string]string{"X-App-ID": "unknown"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "/api/safety/x", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestBindTokenApp(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("app_id", c.Get("X-App-ID"))
		return c.Next()
	})
	app.Get("/bound", withClaims(jwt.MapClaims{"sub": "u", "app_id": "couples"}), bindTokenApp, echoApp)

	status, body := do(t, app, "/bound", map[string]string{"X-App-ID": "couples"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "couples|", body)

	status, _ = do(t, app, "/bound", map[string]string{"X-App-ID": "journal"})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestAdminRequired(t *testing.T) {
	cfg := &config.Config{
		AdminEmails:  "lead@example.com, reviewer@example.com",
		AdminUserIDs: "admin-1",
		AdminToken:   "s3cret",
	}

	app := fiber.New()
	app.Get("/token", AdminRequired(cfg), echoApp)
	app.Get("/email", withClaims(jwt.MapClaims{"email": "reviewer@example.com"}), AdminRequired(cfg), echoApp)
	app.Get("/sub", withClaims(jwt.MapClaims{"sub": "admin-1"}), AdminRequired(cfg), echoApp)
	app.Get("/user", withClaims(jwt.MapClaims{"sub": "someone", "email": "x@example.com"}), AdminRequired(cfg), echoApp)

	status, body := do(t, app, "/token", map[string]string{"X-Admin-Token": "s3cret"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "|admin-token", body)

	status, _ = do(t, app, "/token", map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = do(t, app, "/email", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "|reviewer@example.com", body)

	status, body = do(t, app, "/sub", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "|admin-1", body)

	status, _ = do(t, app, "/user", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}
