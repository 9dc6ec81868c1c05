package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/resources"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
)

type HealthHandler struct {
	registry *tenant.Registry
	finder   *resources.Finder
	pingDB   func() error
	redis    *redis.Client
}

// NewHealthHandler reports on the database via pingDB and, when rdb is not
// nil, on the history cache.
func NewHealthHandler(registry *tenant.Registry, finder *resources.Finder, pingDB func() error, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{registry: registry, finder: finder, pingDB: pingDB, redis: rdb}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := h.pingDB(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	cacheStatus := ""
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		cacheStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			cacheStatus = "unhealthy: " + err.Error()
		}
	}

	resourcesVersion := ""
	if reg, err := h.finder.Registry(c.UserContext()); err == nil {
		resourcesVersion = reg.Version
	}

	return c.JSON(dto.HealthResponse{
		Status:           "ok",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		DB:               dbStatus,
		Cache:            cacheStatus,
		Resources:        h.finder.State(),
		ResourcesVersion: resourcesVersion,
		AppCount:         len(h.registry.All()),
	})
}
