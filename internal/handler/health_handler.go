package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aisentinel/session-service/pkg/cache"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	cache cache.Cache
}

// NewHealthHandler builds the health endpoints. db is nil when the service
// runs on in-memory repositories.
func NewHealthHandler(db Pinger, c cache.Cache) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"service": "session-service",
	})
}

// Ready returns readiness status. Running without a database is degraded but
// ready; a broken cache is not.
// GET /ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := fiber.Map{}

	switch {
	case h.db == nil:
		checks["database"] = "memory"
	case h.db.PingContext(ctx) != nil:
		checks["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	default:
		checks["database"] = "ok"
	}

	if h.cache == nil || h.cache.Ping(ctx) != nil {
		checks["cache"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	} else {
		checks["cache"] = "ok"
	}

	label := "ready"
	if status != fiber.StatusOK {
		label = "not ready"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": label,
		"checks": checks,
	})
}
