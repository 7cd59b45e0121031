package archive

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/wichananm65/heladeria-backend/internal/admin"
	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

type Handler struct {
	archiver *Archiver
	auto     *AutoArchiver
}

// NewHandler builds the archive routes. auto may be nil, in which case the
// manual run endpoint is not registered.
func NewHandler(a *Archiver, auto *AutoArchiver) *Handler {
	return &Handler{archiver: a, auto: auto}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/admin/orders/:id/archive", h.archiveOrder)
	app.Post("/api/v1/admin/orders/:id/archive/override", h.overrideArchive)
	if h.auto != nil {
		app.Post("/api/v1/admin/auto-archive/run", h.runAutoArchive)
	}
}

func (h *Handler) archiveOrder(c *fiber.Ctx) error {
	res, err := h.archiver.Archive(c.UserContext(), c.Params("id"), admin.ActorFromCtx(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) overrideArchive(c *fiber.Ctx) error {
	res, err := h.archiver.Override(c.UserContext(), c.Params("id"), admin.ActorFromCtx(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) runAutoArchive(c *fiber.Ctx) error {
	report, err := h.auto.RunOnce(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func respondError(c *fiber.Ctx, err error) error {
	var (
		notFound     *OrderNotFoundError
		malformed    *MalformedOrderError
		unknown      *weight.UnknownWeightError
		notCompleted *OrderNotCompletedError
		noOverride   *OverrideNotAllowedError
		insufficient *InsufficientStockError
		noFlavor     *FlavorNotFoundError
	)
	status, code := fiber.StatusInternalServerError, "INTERNAL"
	body := fiber.Map{"message": err.Error()}
	switch {
	case errors.As(err, &notFound):
		status, code = fiber.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.As(err, &malformed):
		status, code = fiber.StatusUnprocessableEntity, "MALFORMED_ORDER"
	case errors.As(err, &unknown):
		status, code = fiber.StatusUnprocessableEntity, "UNKNOWN_WEIGHT"
	case errors.As(err, &notCompleted):
		status, code = fiber.StatusUnprocessableEntity, "ORDER_NOT_COMPLETED"
	case errors.As(err, &noOverride):
		status, code = fiber.StatusUnprocessableEntity, "ORDER_IN_PROGRESS"
	case errors.As(err, &insufficient):
		status, code = fiber.StatusConflict, "INSUFFICIENT_STOCK"
		body["flavorId"] = insufficient.FlavorID
		body["required"] = insufficient.Required
		body["available"] = insufficient.Available
	case errors.As(err, &noFlavor):
		status, code = fiber.StatusConflict, "FLAVOR_NOT_FOUND"
		body["flavorId"] = noFlavor.FlavorID
	case errors.Is(err, docstore.ErrTransient):
		status, code = fiber.StatusServiceUnavailable, "TRANSIENT"
	}
	body["code"] = code
	return c.Status(status).JSON(body)
}
