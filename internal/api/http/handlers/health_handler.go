package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to health probes.
type HealthHandler struct {
	database Pinger
	extra    map[string]Pinger
}

// NewHealthHandler returns a new handler instance. A nil database is
// reported as disabled; extra dependencies are reported by name.
func NewHealthHandler(database Pinger, extra map[string]Pinger) *HealthHandler {
	return &HealthHandler{database: database, extra: extra}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	resp := fiber.Map{"status": "healthy", "database": "disabled"}
	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		resp["database"] = "connected"
	}
	for name, dep := range h.extra {
		if err := dep.Ping(ctx); err != nil {
			resp[name] = err.Error()
			continue
		}
		resp[name] = "ok"
	}
	return c.JSON(resp)
}

// Live reports process liveness without touching dependencies.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}
