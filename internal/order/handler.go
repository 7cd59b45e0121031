package order

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/wichananm65/heladeria-backend/internal/admin"
	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

// Handler exposes order placement to customers and order management to admins.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Post("/api/v1/orders", h.createOrder)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/admin/orders", h.getOrders)
	// must be registered before /:id
	app.Get("/api/v1/admin/orders/archived", h.getArchivedOrders)
	app.Post("/api/v1/admin/orders/migrate-flavor-refs", h.migrateFlavorRefs)
	app.Get("/api/v1/admin/orders/:id", h.getOrder)
	app.Patch("/api/v1/admin/orders/:id/status", h.updateStatus)
	app.Patch("/api/v1/admin/orders/:id/shipping", h.updateShipping)
	app.Delete("/api/v1/admin/orders/:id", h.deleteOrder)
}

type createOrderRequest struct {
	ClientID string   `json:"clientId"`
	Customer Customer `json:"customer"`
	Items    []Item   `json:"items"`
	Shipping struct {
		Estimated float64 `json:"estimated"`
		Zone      string  `json:"zone"`
	} `json:"shipping"`
}

func (h *Handler) createOrder(c *fiber.Ctx) error {
	payload := new(createOrderRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if payload.Customer.Name == "" || payload.Customer.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "customer name and phone are required"})
	}

	created, err := h.service.Create(c.UserContext(), Order{
		ClientID: payload.ClientID,
		Customer: payload.Customer,
		Items:    payload.Items,
		Shipping: Shipping{Estimated: payload.Shipping.Estimated, Zone: payload.Shipping.Zone},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *Handler) getOrders(c *fiber.Ctx) error {
	orders, err := h.service.ListActive(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(orders)
}

func (h *Handler) getArchivedOrders(c *fiber.Ctx) error {
	page, err := h.service.ListArchived(c.UserContext(), PageRequest{
		Size:  c.QueryInt("size", DefaultPageSize),
		After: c.Query("after"),
		Date:  c.Query("date"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	o, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(o)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) updateStatus(c *fiber.Ctx) error {
	payload := new(statusRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if !payload.Status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "unknown status"})
	}
	o, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), payload.Status, admin.ActorFromCtx(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(o)
}

type shippingRequest struct {
	Final *float64 `json:"final"`
}

func (h *Handler) updateShipping(c *fiber.Ctx) error {
	payload := new(shippingRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if payload.Final == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "final shipping cost is required"})
	}
	o, err := h.service.SetFinalShipping(c.UserContext(), c.Params("id"), *payload.Final, admin.ActorFromCtx(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(o)
}

func (h *Handler) deleteOrder(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id"), admin.ActorFromCtx(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) migrateFlavorRefs(c *fiber.Ctx) error {
	report, err := h.service.MigrateFlavorRefs(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var unknown *weight.UnknownWeightError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, flavor.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrArchived), errors.Is(err, ErrInvalidTransition):
		status = fiber.StatusConflict
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrInvalidItem), errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidCursor):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrTooManyFlavors), errors.Is(err, ErrFlavorInactive), errors.Is(err, ErrUnknownProduct),
		errors.Is(err, flavor.ErrAmbiguousName), errors.As(err, &unknown):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, docstore.ErrTransient):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"message": err.Error()})
}
