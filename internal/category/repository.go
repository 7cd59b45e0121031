package category

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

var ErrNotFound = errors.New("category not found")

// Repository provides access to categories.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	Get(ctx context.Context, slug string) (Category, error)
	Put(ctx context.Context, c Category) error
}

// StoreRepository keeps categories in the document store.
type StoreRepository struct {
	store docstore.Store
}

func NewStoreRepository(store docstore.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// List returns categories ordered by `ord` descending, then slug.
func (r *StoreRepository) List(ctx context.Context) ([]Category, error) {
	snaps, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(snaps))
	for _, snap := range snaps {
		var c Category
		if err := snap.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode category %s: %w", snap.Ref.ID, err)
		}
		c.Slug = snap.Ref.ID
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order > out[j].Order
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (r *StoreRepository) Get(ctx context.Context, slug string) (Category, error) {
	snap, err := r.store.Get(ctx, Ref(slug))
	if err != nil {
		return Category{}, err
	}
	if !snap.Exists {
		return Category{}, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	var c Category
	if err := snap.DataTo(&c); err != nil {
		return Category{}, err
	}
	c.Slug = slug
	return c, nil
}

func (r *StoreRepository) Put(ctx context.Context, c Category) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(Ref(c.Slug), c)
	})
}
