package health

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"platform-core/internal/cache"
	"platform-core/internal/store"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Handler struct {
	store *store.Store
	cache *cache.Cache
}

func NewHandler(s *store.Store, c *cache.Cache) *Handler {
	return &Handler{store: s, cache: c}
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)
	app.Get("/health/ready", h.Ready)
}

// Health is the liveness probe.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks the database and cache. Any failing component turns the
// overall status unhealthy and the response into a 503.
func (h *Handler) Ready(c *fiber.Ctx) error {
	components := fiber.Map{}
	healthy := true

	if err := h.store.Ping(c.Context()); err != nil {
		components["database"] = fiber.Map{"status": "unhealthy", "error": err.Error()}
		healthy = false
	} else {
		components["database"] = fiber.Map{"status": "ok"}
	}

	if !h.cache.Enabled() {
		components["redis"] = fiber.Map{"status": "disabled"}
	} else if err := h.cache.Healthy(c.Context()); err != nil {
		components["redis"] = fiber.Map{"status": "unhealthy", "error": err.Error()}
		healthy = false
	} else {
		components["redis"] = fiber.Map{"status": "ok"}
	}

	status := "ok"
	code := fiber.StatusOK
	if !healthy {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
