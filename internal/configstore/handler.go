package configstore

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
	cfg := router.Group("/config")

	cfg.Post("/scopes", h.CreateScope)
	cfg.Get("/scopes", h.ListScopes)
	cfg.Get("/scopes/:scope_name", h.GetScope)
	cfg.Put("/scopes/:scope_name", h.UpdateScope)
	cfg.Delete("/scopes/:scope_name", h.DeleteScope)

	cfg.Post("/:scope_name", h.CreateItem)
	cfg.Get("/:scope_name", h.ListItems)
	cfg.Get("/:scope_name/:key", h.GetItem)
	cfg.Put("/:scope_name/:key", h.UpdateItem)
	cfg.Delete("/:scope_name/:key", h.DeleteItem)
	cfg.Get("/:scope_name/:key/value", h.GetValue)
	cfg.Get("/:scope_name/:key/history", h.ListHistory)
}

func (h *Handler) CreateScope(c *fiber.Ctx) error {
	var req CreateScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	scope, err := h.service.CreateScope(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(scope)
}

func (h *Handler) ListScopes(c *fiber.Ctx) error {
	scopes, err := h.service.ListScopes(c.Context(), core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(scopes)
}

func (h *Handler) GetScope(c *fiber.Ctx) error {
	scope, err := h.service.GetScopeByName(c.Context(), c.Params("scope_name"))
	if err != nil {
		return err
	}
	return c.JSON(scope)
}

func (h *Handler) UpdateScope(c *fiber.Ctx) error {
	scope, err := h.service.GetScopeByName(c.Context(), c.Params("scope_name"))
	if err != nil {
		return err
	}
	var req UpdateScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	updated, err := h.service.UpdateScope(c.Context(), scope.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *Handler) DeleteScope(c *fiber.Ctx) error {
	scope, err := h.service.GetScopeByName(c.Context(), c.Params("scope_name"))
	if err != nil {
		return err
	}
	if err := h.service.DeleteScope(c.Context(), scope.ID, core.ActorID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) CreateItem(c *fiber.Ctx) error {
	scope, err := h.service.GetScopeByName(c.Context(), c.Params("scope_name"))
	if err != nil {
		return err
	}
	var req CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	item, err := h.service.CreateItem(c.Context(), scope.ID, &req, core.ActorID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *Handler) ListItems(c *fiber.Ctx) error {
	scope, err := h.service.GetScopeByName(c.Context(), c.Params("scope_name"))
	if err != nil {
		return err
	}
	items, err := h.service.ListItems(c.Context(), scope.ID, core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *Handler) GetItem(c *fiber.Ctx) error {
	item, err := h.service.GetItemByKey(c.Context(), c.Params("scope_name"), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *Handler) GetValue(c *fiber.Ctx) error {
	item, err := h.service.GetItemByKey(c.Context(), c.Params("scope_name"), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"value": item.Value})
}

func (h *Handler) UpdateItem(c *fiber.Ctx) error {
	item, err := h.service.GetItemByKey(c.Context(), c.Params("scope_name"), c.Params("key"))
	if err != nil {
		return err
	}
	var req UpdateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	updated, err := h.service.UpdateItem(c.Context(), item.ID, &req, core.ActorID(c))
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *Handler) DeleteItem(c *fiber.Ctx) error {
	item, err := h.service.GetItemByKey(c.Context(), c.Params("scope_name"), c.Params("key"))
	if err != nil {
		return err
	}
	if err := h.service.DeleteItem(c.Context(), item.ID, core.ActorID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) ListHistory(c *fiber.Ctx) error {
	item, err := h.service.GetItemByKey(c.Context(), c.Params("scope_name"), c.Params("key"))
	if err != nil {
		return err
	}
	history, err := h.service.ListHistory(c.Context(), item.ID, core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(history)
}
