package notifications

import (
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
	n := router.Group("/notifications")

	n.Post("/", h.Create)
	n.Post("/bulk", h.CreateBulk)
	n.Get("/", h.List)
	n.Get("/unread-count", h.UnreadCount)
	n.Post("/read-all", h.MarkAllRead)
	n.Post("/clean-expired", h.CleanExpired)
	n.Get("/:id", h.Get)
	n.Put("/:id", h.Update)
	n.Post("/:id/read", h.MarkAsRead)
	n.Delete("/:id", h.Delete)
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	n, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

func (h *Handler) CreateBulk(c *fiber.Ctx) error {
	var req BulkCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	result, err := h.service.CreateBulk(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *Handler) List(c *fiber.Ctx) error {
	filter := Filter{
		RecipientID:    c.Query("recipient_id"),
		Status:         c.Query("status"),
		Type:           c.Query("notification_type"),
		Priority:       c.Query("priority"),
		IncludeExpired: c.QueryBool("include_expired"),
	}
	result, err := h.service.List(c.Context(), filter, core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	n, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(n)
}

func (h *Handler) Update(c *fiber.Ctx) error {
	var req UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	n, err := h.service.Update(c.Context(), c.Params("id"), &req)
	if err != nil {
		return err
	}
	return c.JSON(n)
}

func (h *Handler) MarkAsRead(c *fiber.Ctx) error {
	n, err := h.service.MarkAsRead(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(n)
}

func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	count, err := h.service.MarkAllRead(c.Context(), c.Query("recipient_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked_read": count})
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	count, err := h.service.UnreadCount(c.Context(), c.Query("recipient_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"unread_count": count})
}

func (h *Handler) CleanExpired(c *fiber.Ctx) error {
	count, err := h.service.CleanExpired(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": count})
}
