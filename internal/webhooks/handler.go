package webhooks

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
	wh := router.Group("/webhooks")

	wh.Post("/endpoints", h.CreateEndpoint)
	wh.Get("/endpoints", h.ListEndpoints)
	wh.Get("/endpoints/:id", h.GetEndpoint)
	wh.Put("/endpoints/:id", h.UpdateEndpoint)
	wh.Delete("/endpoints/:id", h.DeleteEndpoint)

	wh.Post("/endpoints/:id/subscriptions", h.Subscribe)
	wh.Get("/subscriptions", h.ListSubscriptions)
	wh.Delete("/subscriptions/:id", h.DeleteSubscription)

	wh.Post("/endpoints/:id/test", h.TestEndpoint)
	wh.Post("/trigger/:event_type", h.Trigger)
	wh.Post("/retry-failed", h.RetryFailed)

	wh.Get("/deliveries", h.ListDeliveries)
	wh.Get("/deliveries/:id", h.GetDelivery)
}

func (h *Handler) CreateEndpoint(c *fiber.Ctx) error {
	var req CreateEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	ep, err := h.service.CreateEndpoint(c.Context(), &req, core.ActorID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(ep)
}

func (h *Handler) ListEndpoints(c *fiber.Ctx) error {
	endpoints, err := h.service.ListEndpoints(c.Context(), c.Query("status"), core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(endpoints)
}

func (h *Handler) GetEndpoint(c *fiber.Ctx) error {
	ep, err := h.service.GetEndpoint(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ep)
}

func (h *Handler) UpdateEndpoint(c *fiber.Ctx) error {
	var req UpdateEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	ep, err := h.service.UpdateEndpoint(c.Context(), c.Params("id"), &req)
	if err != nil {
		return err
	}
	return c.JSON(ep)
}

func (h *Handler) DeleteEndpoint(c *fiber.Ctx) error {
	if err := h.service.DeleteEndpoint(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var req SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	sub, err := h.service.Subscribe(c.Context(), c.Params("id"), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *Handler) ListSubscriptions(c *fiber.Ctx) error {
	subs, err := h.service.ListSubscriptions(c.Context(),
		c.Query("endpoint_id"), EventType(c.Query("event_type")))
	if err != nil {
		return err
	}
	return c.JSON(subs)
}

func (h *Handler) DeleteSubscription(c *fiber.Ctx) error {
	if err := h.service.DeleteSubscription(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) TestEndpoint(c *fiber.Ctx) error {
	var req struct {
		EventType EventType      `json:"event_type"`
		Payload   map[string]any `json:"payload"`
	}
	if err := c.BodyParser(&req); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	if req.EventType == "" {
		req.EventType = EventSystemAlert
	}
	delivery, err := h.service.TestEndpoint(c.Context(), c.Params("id"), req.EventType, req.Payload)
	if err != nil {
		return err
	}
	return c.JSON(delivery)
}

func (h *Handler) Trigger(c *fiber.Ctx) error {
	var payload map[string]any
	if err := c.BodyParser(&payload); err != nil {
		return core.ValidationError("invalid JSON body")
	}
	result, err := h.service.Trigger(c.Context(), EventType(c.Params("event_type")), payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *Handler) RetryFailed(c *fiber.Ctx) error {
	n, err := h.service.RetryDueDeliveries(c.Context(), time.Now().UTC())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"retried": n})
}

func (h *Handler) ListDeliveries(c *fiber.Ctx) error {
	filter := DeliveryFilter{
		EndpointID: c.Query("endpoint_id"),
		EventType:  EventType(c.Query("event_type")),
	}
	if v := c.Query("success"); v != "" {
		b := v == "true" || v == "1"
		filter.Success = &b
	}
	deliveries, err := h.service.ListDeliveries(c.Context(), filter, core.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(deliveries)
}

func (h *Handler) GetDelivery(c *fiber.Ctx) error {
	delivery, err := h.service.GetDelivery(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(delivery)
}
