package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/eventlog"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/product"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

// EventLogger records what happened to an order.
type EventLogger interface {
	Log(ctx context.Context, e eventlog.Event) (eventlog.Event, error)
}

// FlavorResolver turns a flavor reference typed by a customer, or stored by
// an older version of the shop, into a flavor.
type FlavorResolver interface {
	Resolve(ctx context.Context, ref string) (flavor.Flavor, error)
}

// Catalog looks up the product an item was ordered from.
type Catalog interface {
	GetByID(ctx context.Context, id string) (product.Product, error)
}

// Service provides business logic for orders.
type Service struct {
	store   docstore.Store
	repo    *Repository
	flavors FlavorResolver
	catalog Catalog
	events  EventLogger
	now     func() time.Time
}

func NewService(store docstore.Store, flavors FlavorResolver, events EventLogger) *Service {
	return &Service{
		store:   store,
		repo:    NewRepository(store),
		flavors: flavors,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithCatalog makes Create check items against the catalog. Items then take
// their size and flavor limit from the product they reference.
func (s *Service) WithCatalog(c Catalog) *Service {
	s.catalog = c
	return s
}

// fromCatalog fills in the size of an item from its product and returns the
// product's flavor limit, 0 when there is none.
func (s *Service) fromCatalog(ctx context.Context, it *Item) (int, error) {
	if s.catalog == nil || it.ProductID == "" {
		return 0, nil
	}
	p, err := s.catalog.GetByID(ctx, it.ProductID)
	if errors.Is(err, product.ErrNotFound) {
		return 0, fmt.Errorf("%s: %w", it.ProductID, ErrUnknownProduct)
	}
	if err != nil {
		return 0, err
	}
	if it.Grams == 0 {
		it.Grams = p.Grams
	}
	if it.Category == "" {
		it.Category = p.Category
	}
	return p.MaxFlavors, nil
}

func (s *Service) logEvent(ctx context.Context, e eventlog.Event) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Log(ctx, e); err != nil {
		log.Printf("warning: could not log %s for order %s: %v", e.Type, e.OrderID, err)
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Create validates a new order, resolves every flavor reference to an active
// flavor id and stores the order as pending.
func (s *Service) Create(ctx context.Context, in Order) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	if in.Shipping.Estimated < 0 {
		return Order{}, fmt.Errorf("shipping: %w", ErrInvalidItem)
	}
	customer := in.Customer
	if customer.Phone != "" {
		phone, err := NormalizePhone(customer.Phone)
		if err != nil {
			return Order{}, fmt.Errorf("%q: %w", customer.Phone, err)
		}
		customer.Phone = phone
	}

	items := make([]Item, len(in.Items))
	total := 0.0
	for i, it := range in.Items {
		it.Title = strings.TrimSpace(it.Title)
		if it.Title == "" || it.Quantity <= 0 || it.Price < 0 || it.Grams < 0 {
			return Order{}, fmt.Errorf("item %d: %w", i, ErrInvalidItem)
		}
		limit, err := s.fromCatalog(ctx, &it)
		if err != nil {
			return Order{}, fmt.Errorf("item %d: %w", i, err)
		}
		if len(it.Gustos) > 0 {
			grams, err := weight.Resolve(it.Title, it.Grams)
			if err != nil {
				return Order{}, fmt.Errorf("item %d: %w", i, err)
			}
			if limit == 0 {
				limit = weight.MaxFlavors(grams)
			}
			if len(it.Gustos) > limit {
				return Order{}, fmt.Errorf("item %d: %d flavors for %v g: %w", i, len(it.Gustos), grams, ErrTooManyFlavors)
			}
			ids := make([]string, 0, len(it.Gustos))
			for _, ref := range it.Gustos {
				f, err := s.flavors.Resolve(ctx, ref)
				if err != nil {
					return Order{}, fmt.Errorf("item %d flavor %q: %w", i, ref, err)
				}
				if !f.Active {
					return Order{}, fmt.Errorf("item %d flavor %q: %w", i, f.Name, ErrFlavorInactive)
				}
				ids = append(ids, f.ID)
			}
			it.Gustos = ids
		}
		total += it.Price * float64(it.Quantity)
		items[i] = it
	}

	now := s.now()
	o := Order{
		ID:       uuid.NewString(),
		ClientID: in.ClientID,
		Customer: customer,
		Items:    items,
		Total:    roundMoney(total),
		Shipping: Shipping{Estimated: in.Shipping.Estimated, Zone: in.Shipping.Zone},
		Status:   StatusPending,

		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(Ref(o.ID), o)
	})
	if err != nil {
		return Order{}, err
	}

	s.logEvent(ctx, eventlog.Event{
		OrderID:   o.ID,
		Type:      eventlog.OrderCreated,
		To:        string(StatusPending),
		Actor:     "customer",
		ActorName: o.Customer.Name,
		Meta:      map[string]any{"total": o.Total, "items": len(o.Items)},
	})
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus moves a non-archived order along the status machine. Setting
// the status it already has is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor string) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("status %q: %w", to, ErrInvalidTransition)
	}
	before, after, err := s.repo.Mutate(ctx, id, func(o Order) (docstore.Fields, error) {
		if o.Archived {
			return nil, ErrArchived
		}
		if o.Status == to {
			return nil, nil
		}
		if !CanTransition(o.Status, to) {
			return nil, fmt.Errorf("%s to %s: %w", o.Status, to, ErrInvalidTransition)
		}
		now := s.now()
		fields := docstore.Fields{"status": to, "updatedAt": now}
		if to == StatusCompleted {
			fields["completedAt"] = now
		}
		return fields, nil
	})
	if err != nil {
		return Order{}, err
	}
	if before.Status != after.Status {
		s.logEvent(ctx, eventlog.Event{
			OrderID: id,
			Type:    eventlog.OrderStatusChanged,
			From:    string(before.Status),
			To:      string(after.Status),
			Actor:   actor,
		})
	}
	return after, nil
}

// SetFinalShipping records the shipping cost the admin settled on.
func (s *Service) SetFinalShipping(ctx context.Context, id string, cost float64, actor string) (Order, error) {
	if cost < 0 {
		return Order{}, fmt.Errorf("shipping cost %v: %w", cost, ErrInvalidItem)
	}
	cost = roundMoney(cost)
	before, after, err := s.repo.Mutate(ctx, id, func(o Order) (docstore.Fields, error) {
		if o.Archived {
			return nil, ErrArchived
		}
		sh := o.Shipping
		sh.Final = &cost
		return docstore.Fields{"shipping": sh, "updatedAt": s.now()}, nil
	})
	if err != nil {
		return Order{}, err
	}
	meta := map[string]any{"final": cost}
	if before.Shipping.Final != nil {
		meta["previous"] = *before.Shipping.Final
	}
	s.logEvent(ctx, eventlog.Event{
		OrderID: id,
		Type:    eventlog.OrderShippingUpdated,
		Actor:   actor,
		Meta:    meta,
	})
	return after, nil
}

// Delete removes an order that has not been archived.
func (s *Service) Delete(ctx context.Context, id string, actor string) error {
	var deleted Order
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		o, err := GetInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Archived {
			return ErrArchived
		}
		deleted = o
		return tx.Delete(Ref(id))
	})
	if err != nil {
		return err
	}
	s.logEvent(ctx, eventlog.Event{
		OrderID: id,
		Type:    eventlog.OrderDeleted,
		From:    string(deleted.Status),
		Actor:   actor,
	})
	return nil
}

// ListActive returns non-archived orders, newest first.
func (s *Service) ListActive(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.All(ctx, func(o Order) bool { return !o.Archived })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// ListCompletedBefore returns completed, non-archived orders completed at or
// before cutoff.
func (s *Service) ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]Order, error) {
	return s.repo.All(ctx, func(o Order) bool {
		return !o.Archived && o.Status == StatusCompleted &&
			o.CompletedAt != nil && !o.CompletedAt.After(cutoff)
	})
}

var (
	ErrInvalidDate   = errors.New("date must be YYYY-MM-DD")
	ErrInvalidCursor = errors.New("unknown page cursor")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Size  int
	After string
	// Date limits results to orders archived on that UTC day (YYYY-MM-DD).
	Date string
}

type Page struct {
	Orders []Order `json:"orders"`
	Next   string  `json:"next,omitempty"`
}

// ListArchived pages through archived orders, most recently archived first.
// Next is the cursor for the following page, empty on the last one.
func (s *Service) ListArchived(ctx context.Context, p PageRequest) (Page, error) {
	size := p.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	var day string
	if p.Date != "" {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return Page{}, ErrInvalidDate
		}
		day = d.Format("2006-01-02")
	}

	orders, err := s.repo.All(ctx, func(o Order) bool {
		if !o.Archived {
			return false
		}
		if day == "" {
			return true
		}
		return o.ArchivedAt != nil && o.ArchivedAt.UTC().Format("2006-01-02") == day
	})
	if err != nil {
		return Page{}, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		ai, aj := archivedAt(orders[i]), archivedAt(orders[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return orders[i].ID < orders[j].ID
	})

	start := 0
	if p.After != "" {
		start = -1
		for i, o := range orders {
			if o.ID == p.After {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return Page{}, ErrInvalidCursor
		}
	}
	end := start + size
	if end > len(orders) {
		end = len(orders)
	}
	page := Page{Orders: orders[start:end]}
	if end < len(orders) {
		page.Next = orders[end-1].ID
	}
	return page, nil
}

func archivedAt(o Order) time.Time {
	if o.ArchivedAt == nil {
		return time.Time{}
	}
	return *o.ArchivedAt
}

type MigrationReport struct {
	Scanned    int      `json:"scanned"`
	Updated    int      `json:"updated"`
	Unresolved []string `json:"unresolved"`
}

// MigrateFlavorRefs rewrites flavor names left in non-archived orders by older
// versions of the shop into flavor ids. References are resolved up front and
// each order is rewritten in its own transaction. References that match no
// flavor, or more than one, are reported and left as they are.
func (s *Service) MigrateFlavorRefs(ctx context.Context) (MigrationReport, error) {
	report := MigrationReport{Unresolved: []string{}}
	orders, err := s.repo.All(ctx, func(o Order) bool { return !o.Archived })
	if err != nil {
		return report, err
	}
	report.Scanned = len(orders)

	mapping := map[string]string{}
	seen := map[string]bool{}
	for _, o := range orders {
		for _, it := range o.Items {
			for _, ref := range it.Gustos {
				if seen[ref] {
					continue
				}
				seen[ref] = true
				f, err := s.flavors.Resolve(ctx, ref)
				switch {
				case errors.Is(err, flavor.ErrNotFound), errors.Is(err, flavor.ErrAmbiguousName):
					log.Printf("warning: flavor reference %q left unresolved: %v", ref, err)
					report.Unresolved = append(report.Unresolved, ref)
				case err != nil:
					return report, err
				case f.ID != ref:
					mapping[ref] = f.ID
				}
			}
		}
	}
	if len(mapping) == 0 {
		return report, nil
	}

	for _, o := range orders {
		changed := false
		_, _, err := s.repo.Mutate(ctx, o.ID, func(cur Order) (docstore.Fields, error) {
			changed = false
			if cur.Archived {
				return nil, nil
			}
			items := make([]Item, len(cur.Items))
			for i, it := range cur.Items {
				gustos := make([]string, len(it.Gustos))
				for j, ref := range it.Gustos {
					if id, ok := mapping[ref]; ok {
						ref = id
						changed = true
					}
					gustos[j] = ref
				}
				it.Gustos = gustos
				items[i] = it
			}
			if !changed {
				return nil, nil
			}
			return docstore.Fields{"items": items, "updatedAt": s.now()}, nil
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("migrate order %s: %w", o.ID, err)
		}
		if changed {
			report.Updated++
		}
	}
	return report, nil
}
