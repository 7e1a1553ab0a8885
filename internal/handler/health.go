package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthInfo describes the wiring reported by /health.
type HealthInfo struct {
	Providers    map[string]string
	Storage      string
	Database     string
	DispatchMode string
}

// Health handles GET /health
func Health(info HealthInfo) fiber.Handler {
	started := time.Now()
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"uptime":    time.Since(started).Round(time.Second).String(),
			"providers": info.Providers,
			"storage":   info.Storage,
			"database":  info.Database,
			"dispatch":  info.DispatchMode,
		})
	}
}
