package eventlog

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	logger *Logger
}

func NewHandler(logger *Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/admin/orders/:id/events", h.getOrderEvents)
	app.Get("/api/v1/admin/events", h.getEvents)
}

func (h *Handler) getOrderEvents(c *fiber.Ctx) error {
	events, err := h.logger.List(c.UserContext(), Query{
		OrderID: c.Params("id"),
		Limit:   c.QueryInt("limit"),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(events)
}

// getEvents lists recent events, optionally filtered by ?type=A,B.
func (h *Handler) getEvents(c *fiber.Ctx) error {
	q := Query{Limit: c.QueryInt("limit")}
	if raw := c.Query("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Types = append(q.Types, Type(strings.ToUpper(t)))
			}
		}
	}
	events, err := h.logger.List(c.UserContext(), q)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(events)
}
