// Package archive closes completed orders and takes the ice cream they used
// out of flavor stock, all in one store transaction.
package archive

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/eventlog"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/order"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

type EventLogger interface {
	Log(ctx context.Context, e eventlog.Event) (eventlog.Event, error)
}

// AlertRaiser is told about every flavor an archival deducted from.
type AlertRaiser interface {
	Raise(ctx context.Context, f flavor.Flavor, before float64) (bool, error)
}

type Deduction struct {
	FlavorID  string  `json:"flavorId"`
	Name      string  `json:"name"`
	Grams     float64 `json:"grams"`
	Remaining float64 `json:"remaining"`
}

type Result struct {
	OrderID         string      `json:"orderId"`
	AlreadyArchived bool        `json:"alreadyArchived"`
	Override        bool        `json:"override,omitempty"`
	ArchivedAt      time.Time   `json:"archivedAt"`
	Deductions      []Deduction `json:"deductions"`
}

// Requirement is the total grams an order needs from one flavor.
type Requirement struct {
	FlavorID string
	Grams    float64
}

// Requirements adds up, per flavor, the grams each item takes. An item's
// weight is split equally between its flavors, rounded to 0.01 g, with the
// last flavor taking the rounding remainder so the shares add up to the item.
// Flavors are returned in the order they first appear.
func Requirements(o order.Order) ([]Requirement, error) {
	if len(o.Items) == 0 {
		return nil, &MalformedOrderError{OrderID: o.ID, Reason: "no items"}
	}
	var out []Requirement
	index := map[string]int{}
	for _, it := range o.Items {
		if len(it.Gustos) == 0 {
			continue
		}
		grams, err := weight.Resolve(it.Title, it.Grams)
		if err != nil {
			return nil, err
		}
		share := weight.Round(grams / float64(len(it.Gustos)))
		last := weight.Round(grams - share*float64(len(it.Gustos)-1))
		for n, id := range it.Gustos {
			if id == "" {
				return nil, &MalformedOrderError{OrderID: o.ID, Reason: "empty flavor reference"}
			}
			i, ok := index[id]
			if !ok {
				i = len(out)
				index[id] = i
				out = append(out, Requirement{FlavorID: id})
			}
			if n == len(it.Gustos)-1 {
				out[i].Grams = weight.Round(out[i].Grams + last)
			} else {
				out[i].Grams = weight.Round(out[i].Grams + share)
			}
		}
	}
	return out, nil
}

type Archiver struct {
	store  docstore.Store
	events EventLogger
	alerts AlertRaiser
	now    func() time.Time
}

// NewArchiver builds an Archiver. events and alerts may be nil.
func NewArchiver(store docstore.Store, events EventLogger, alerts AlertRaiser) *Archiver {
	return &Archiver{
		store:  store,
		events: events,
		alerts: alerts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type touched struct {
	after  flavor.Flavor
	before float64
}

// Archive deducts the stock a completed order used and marks it archived.
// Every read happens before any write and the store rejects the commit if
// the order or any flavor changed meanwhile, so either all flavors and the
// order are written or nothing is. Archiving an archived order succeeds
// without touching anything.
func (a *Archiver) Archive(ctx context.Context, orderID, actor string) (Result, error) {
	var (
		res     Result
		changed []touched
	)
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		res = Result{OrderID: orderID, Deductions: []Deduction{}}
		changed = nil

		o, err := readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Archived {
			res.AlreadyArchived = true
			if o.ArchivedAt != nil {
				res.ArchivedAt = *o.ArchivedAt
			}
			return nil
		}
		if o.Status != order.StatusCompleted {
			return &OrderNotCompletedError{OrderID: orderID, Status: o.Status}
		}

		reqs, err := Requirements(o)
		if err != nil {
			return err
		}

		current := make([]flavor.Flavor, len(reqs))
		for i, r := range reqs {
			f, err := flavor.GetInTx(ctx, tx, r.FlavorID)
			if errors.Is(err, flavor.ErrNotFound) {
				return &FlavorNotFoundError{FlavorID: r.FlavorID}
			}
			if err != nil {
				return err
			}
			current[i] = f
		}
		for i, r := range reqs {
			if current[i].Weight < r.Grams {
				return &InsufficientStockError{
					FlavorID:  r.FlavorID,
					Name:      current[i].Name,
					Required:  r.Grams,
					Available: current[i].Weight,
				}
			}
		}

		now := a.now()
		for i, r := range reqs {
			f := current[i]
			before := f.Weight
			f.Weight = weight.Round(before - r.Grams)
			f.UpdatedAt = now
			if err := flavor.SetWeightInTx(tx, f.ID, f.Weight, now); err != nil {
				return err
			}
			changed = append(changed, touched{after: f, before: before})
			res.Deductions = append(res.Deductions, Deduction{
				FlavorID:  f.ID,
				Name:      f.Name,
				Grams:     r.Grams,
				Remaining: f.Weight,
			})
		}
		if err := markArchived(tx, orderID, now); err != nil {
			return err
		}
		res.ArchivedAt = now
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.AlreadyArchived {
		return res, nil
	}

	a.logArchived(ctx, res, actor)
	a.raiseAlerts(ctx, changed)
	return res, nil
}

// Override archives a completed or cancelled order without touching stock.
func (a *Archiver) Override(ctx context.Context, orderID, actor string) (Result, error) {
	var res Result
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		res = Result{OrderID: orderID, Override: true, Deductions: []Deduction{}}
		o, err := readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Archived {
			res.AlreadyArchived = true
			if o.ArchivedAt != nil {
				res.ArchivedAt = *o.ArchivedAt
			}
			return nil
		}
		if o.Status != order.StatusCompleted && o.Status != order.StatusCancelled {
			return &OverrideNotAllowedError{OrderID: orderID, Status: o.Status}
		}
		now := a.now()
		res.ArchivedAt = now
		return markArchived(tx, orderID, now)
	})
	if err != nil {
		return Result{}, err
	}
	if !res.AlreadyArchived {
		a.logArchived(ctx, res, actor)
	}
	return res, nil
}

func readOrder(ctx context.Context, tx docstore.Tx, id string) (order.Order, error) {
	o, err := order.GetInTx(ctx, tx, id)
	if errors.Is(err, order.ErrNotFound) {
		return order.Order{}, &OrderNotFoundError{OrderID: id}
	}
	return o, err
}

func markArchived(tx docstore.Tx, id string, at time.Time) error {
	return tx.Update(order.Ref(id), docstore.Fields{
		"archived":   true,
		"archivedAt": at,
		"updatedAt":  at,
	})
}

func (a *Archiver) logArchived(ctx context.Context, res Result, actor string) {
	if a.events == nil {
		return
	}
	deductions := make([]map[string]any, 0, len(res.Deductions))
	for _, d := range res.Deductions {
		deductions = append(deductions, map[string]any{
			"flavorId":  d.FlavorID,
			"name":      d.Name,
			"grams":     d.Grams,
			"remaining": d.Remaining,
		})
	}
	meta := map[string]any{"deductions": deductions}
	if res.Override {
		meta["override"] = true
	}
	_, err := a.events.Log(ctx, eventlog.Event{
		OrderID:   res.OrderID,
		Type:      eventlog.OrderArchived,
		To:        "archived",
		Actor:     actor,
		Meta:      meta,
		Timestamp: res.ArchivedAt,
	})
	if err != nil {
		log.Printf("warning: order %s archived but the event was not logged: %v", res.OrderID, err)
	}
}

func (a *Archiver) raiseAlerts(ctx context.Context, changed []touched) {
	if a.alerts == nil {
		return
	}
	for _, t := range changed {
		if _, err := a.alerts.Raise(ctx, t.after, t.before); err != nil {
			log.Printf("warning: stock alert for %s: %v", t.after.ID, err)
		}
	}
}
