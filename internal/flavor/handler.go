package flavor

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Get("/api/v1/flavors", h.getActiveFlavors)
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/admin/flavors", h.getFlavors)
	app.Post("/api/v1/admin/flavors", h.createFlavor)
	app.Put("/api/v1/admin/flavors/:id", h.updateFlavor)
	app.Delete("/api/v1/admin/flavors/:id", h.deleteFlavor)
	app.Patch("/api/v1/admin/flavors/:id/stock", h.updateStock)
}

type flavorView struct {
	Flavor
	Status Status `json:"status"`
}

func view(f Flavor) flavorView {
	return flavorView{Flavor: f, Status: StockStatus(f.Weight)}
}

func (h *Handler) getActiveFlavors(c *fiber.Ctx) error {
	flavors, err := h.service.List(c.UserContext(), true)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(flavors)
}

func (h *Handler) getFlavors(c *fiber.Ctx) error {
	flavors, err := h.service.List(c.UserContext(), false)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]flavorView, 0, len(flavors))
	for _, f := range flavors {
		out = append(out, view(f))
	}
	return c.JSON(out)
}

func (h *Handler) createFlavor(c *fiber.Ctx) error {
	payload := new(Flavor)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	created, err := h.service.Create(c.UserContext(), *payload)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view(created))
}

func (h *Handler) updateFlavor(c *fiber.Ctx) error {
	payload := new(Flavor)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	updated, err := h.service.Update(c.UserContext(), c.Params("id"), *payload)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view(updated))
}

func (h *Handler) deleteFlavor(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// updateStock accepts {"weight": n} to set the stock or {"delta": n} to add to it.
type stockRequest struct {
	Weight *float64 `json:"weight"`
	Delta  *float64 `json:"delta"`
}

func (h *Handler) updateStock(c *fiber.Ctx) error {
	payload := new(stockRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if (payload.Weight == nil) == (payload.Delta == nil) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "send exactly one of weight or delta"})
	}

	var (
		f   Flavor
		err error
	)
	if payload.Weight != nil {
		f, err = h.service.SetStock(c.UserContext(), c.Params("id"), *payload.Weight)
	} else {
		f, err = h.service.AdjustStock(c.UserContext(), c.Params("id"), *payload.Delta)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view(f))
}

func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		status = fiber.StatusConflict
	case errors.Is(err, ErrNegativeWeight), errors.Is(err, ErrAmbiguousName):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, docstore.ErrTransient):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, ErrNameRequired):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"message": err.Error()})
}
