package flags

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
	ff := router.Group("/feature-flags")

	ff.Post("/", h.Create)
	ff.Get("/", h.List)
	ff.Get("/:key", h.Get)
	ff.Put("/:key", h.Update)
	ff.Delete("/:key", h.Delete)
	ff.Post("/:key/evaluate", h.Evaluate)
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	flag, err := h.service.Create(c.Context(), &req, core.ActorID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(flag)
}

func (h *Handler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.Context(), core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	flag, err := h.service.GetByKey(c.Context(), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(flag)
}

func (h *Handler) Update(c *fiber.Ctx) error {
	var req UpdateFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	flag, err := h.service.Update(c.Context(), c.Params("key"), &req, core.ActorID(c))
	if err != nil {
		return err
	}
	return c.JSON(flag)
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("key"), core.ActorID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Evaluate(c *fiber.Ctx) error {
	var evalCtx EvalContext
	if err := c.BodyParser(&evalCtx); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	result, err := h.service.Evaluate(c.Context(), c.Params("key"), &evalCtx)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
