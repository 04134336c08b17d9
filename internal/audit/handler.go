package audit

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"platform-core/internal/core"
)

type Handler struct {
	service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

func RegisterRoutes(router fiber.Router, h *Handler) {
	audit := router.Group("/audit")

	audit.Post("/logs", h.CreateLog)
	audit.Get("/logs", h.ListLogs)
	audit.Get("/logs/:id", h.GetLog)
}

func (h *Handler) CreateLog(c *fiber.Ctx) error {
	var req CreateLogRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	if req.IPAddress == "" {
		req.IPAddress = c.IP()
	}
	entry, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *Handler) ListLogs(c *fiber.Ctx) error {
	filter := Filter{
		ActorID:      c.Query("actor_id"),
		EventType:    c.Query("event_type"),
		ResourceType: c.Query("resource_type"),
		ResourceID:   c.Query("resource_id"),
		Action:       c.Query("action"),
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return core.ValidationError("start must be RFC3339")
		}
		filter.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return core.ValidationError("end must be RFC3339")
		}
		filter.End = &t
	}
	logs, err := h.service.List(c.Context(), filter, core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(logs)
}

func (h *Handler) GetLog(c *fiber.Ctx) error {
	entry, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(entry)
}
