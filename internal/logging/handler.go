package logging

import (
	"fmt"
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
	logs := router.Group("/logs")

	logs.Post("/", h.Ingest)
	logs.Get("/", h.Query)
	logs.Get("/stats", h.Stats)
	logs.Post("/export", h.Export)
	logs.Get("/:id", h.Get)
}

func (h *Handler) Ingest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	if req.IPAddress == "" {
		req.IPAddress = c.IP()
	}
	entry, err := h.service.Ingest(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *Handler) Query(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Query(c.Context(), filter, core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	entry, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(entry)
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.Context(), filter.Start, filter.End)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *Handler) Export(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	export, err := h.service.ExportJSON(c.Context(), filter, core.ParsePage(c))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=logs_%s.json`, time.Now().UTC().Format("20060102_150405")))
	return c.JSON(export)
}

func parseFilter(c *fiber.Ctx) (Filter, error) {
	filter := Filter{
		Level:   c.Query("level"),
		Service: c.Query("service"),
		TraceID: c.Query("trace_id"),
		UserID:  c.Query("user_id"),
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, core.ValidationError("start must be RFC3339")
		}
		filter.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, core.ValidationError("end must be RFC3339")
		}
		filter.End = &t
	}
	return filter, nil
}
