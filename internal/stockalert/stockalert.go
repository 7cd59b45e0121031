// Package stockalert records flavors whose stock dropped into a worse status
// and pushes them to the live feed.
package stockalert

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/pubsub"
)

const Collection = "stock_alerts"

type Alert struct {
	ID         string        `json:"id"`
	FlavorID   string        `json:"flavorId"`
	FlavorName string        `json:"flavorName"`
	Status     flavor.Status `json:"status"`
	Weight     float64       `json:"weight"`
	CreatedAt  time.Time     `json:"createdAt"`
}

type Recorder struct {
	store docstore.Store
	pub   pubsub.Publisher
	now   func() time.Time
}

var _ flavor.StockWatcher = (*Recorder)(nil)

func NewRecorder(store docstore.Store, pub pubsub.Publisher) *Recorder {
	if pub == nil {
		pub = pubsub.Nop{}
	}
	return &Recorder{store: store, pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

// Raise stores an alert for f when its stock status got worse than before.
// It reports whether an alert was raised.
func (r *Recorder) Raise(ctx context.Context, f flavor.Flavor, before float64) (bool, error) {
	if !flavor.Worsened(before, f.Weight) {
		return false, nil
	}
	a := Alert{
		ID:         uuid.NewString(),
		FlavorID:   f.ID,
		FlavorName: f.Name,
		Status:     flavor.StockStatus(f.Weight),
		Weight:     f.Weight,
		CreatedAt:  r.now(),
	}
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(docstore.NewRef(Collection, a.ID), a)
	})
	if err != nil {
		return false, fmt.Errorf("store alert for %s: %w", f.ID, err)
	}
	if err := r.pub.Publish(ctx, pubsub.TopicStockAlerts, a); err != nil {
		log.Printf("warning: could not publish stock alert for %s: %v", f.ID, err)
	}
	return true, nil
}

// StockChanged lets the flavor service report manual stock edits.
func (r *Recorder) StockChanged(ctx context.Context, f flavor.Flavor, before float64) {
	if _, err := r.Raise(ctx, f, before); err != nil {
		log.Printf("warning: %v", err)
	}
}

// List returns up to limit alerts, newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]Alert, error) {
	snaps, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(snaps))
	for _, snap := range snaps {
		var a Alert
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", snap.Ref.ID, err)
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type Handler struct {
	recorder *Recorder
}

func NewHandler(r *Recorder) *Handler {
	return &Handler{recorder: r}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/admin/stock-alerts", h.getAlerts)
}

func (h *Handler) getAlerts(c *fiber.Ctx) error {
	alerts, err := h.recorder.List(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
	return c.JSON(alerts)
}
