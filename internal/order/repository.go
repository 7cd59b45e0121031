package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrArchived          = errors.New("order is archived")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidItem       = errors.New("invalid order item")
	ErrTooManyFlavors    = errors.New("too many flavors for this size")
	ErrFlavorInactive    = errors.New("flavor is not available")
	ErrUnknownProduct    = errors.New("product is not in the catalog")
)

// GetInTx reads an order inside tx.
func GetInTx(ctx context.Context, tx docstore.Tx, id string) (Order, error) {
	snap, err := tx.Get(ctx, Ref(id))
	if err != nil {
		return Order{}, err
	}
	if !snap.Exists {
		return Order{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return decode(snap)
}

func decode(snap docstore.Snapshot) (Order, error) {
	var o Order
	if err := snap.DataTo(&o); err != nil {
		return Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	o.ID = snap.Ref.ID
	return o, nil
}

// Repository reads orders outside transactions.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	snap, err := r.store.Get(ctx, Ref(id))
	if err != nil {
		return Order{}, err
	}
	if !snap.Exists {
		return Order{}, ErrNotFound
	}
	return decode(snap)
}

// All returns every order matching keep.
func (r *Repository) All(ctx context.Context, keep func(Order) bool) ([]Order, error) {
	snaps, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(snaps))
	for _, snap := range snaps {
		o, err := decode(snap)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Mutate runs fn on the current order inside a transaction and stores the
// fields it returns. It returns the order as read and as written. No fields
// means nothing to write.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(o Order) (docstore.Fields, error)) (before Order, after Order, err error) {
	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		o, err := GetInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		fields, err := fn(o)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			before, after = o, o
			return nil
		}
		raw, err := json.Marshal(o)
		if err != nil {
			return err
		}
		merged, err := docstore.Merge(raw, fields)
		if err != nil {
			return err
		}
		next, err := decode(docstore.Snapshot{Ref: Ref(id), Exists: true, Data: merged})
		if err != nil {
			return err
		}
		before, after = o, next
		return tx.Update(Ref(id), fields)
	})
	return before, after, err
}
