package product

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

var (
	ErrNotFound = errors.New("product not found")
)

type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id string, p Product) (Product, error)
	Delete(ctx context.Context, id string) error
	// Reset replaces all products with the provided list (used for dev / seeding)
	Reset(ctx context.Context, products []Product) error
}

func sortCatalog(ps []Product) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Price != ps[j].Price {
			return ps[i].Price < ps[j].Price
		}
		return ps[i].Title < ps[j].Title
	})
}

// InMemoryRepository keeps the catalog in a slice. Useful for tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	storage []Product
}

func NewInMemoryRepository(seed []Product) *InMemoryRepository {
	r := &InMemoryRepository{}
	r.Reset(context.Background(), seed)
	return r
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Product, len(r.storage))
	copy(out, r.storage)
	sortCatalog(out)
	return out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.storage {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (r *InMemoryRepository) Create(ctx context.Context, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.storage = append(r.storage, p)
	return p, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.storage {
		if r.storage[i].ID == id {
			p.ID = id
			r.storage[i] = p
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.storage {
		if r.storage[i].ID == id {
			r.storage = append(r.storage[:i], r.storage[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *InMemoryRepository) Reset(ctx context.Context, products []Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage = make([]Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		r.storage = append(r.storage, p)
	}
	return nil
}

// StoreRepository keeps the catalog in the shop's document store.
type StoreRepository struct {
	store docstore.Store
}

func NewStoreRepository(store docstore.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func decode(snap docstore.Snapshot) (Product, error) {
	var p Product
	if err := snap.DataTo(&p); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return p, nil
}

func (r *StoreRepository) List(ctx context.Context) ([]Product, error) {
	snaps, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(snaps))
	for _, snap := range snaps {
		p, err := decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortCatalog(out)
	return out, nil
}

func (r *StoreRepository) GetByID(ctx context.Context, id string) (Product, error) {
	snap, err := r.store.Get(ctx, Ref(id))
	if err != nil {
		return Product{}, err
	}
	if !snap.Exists {
		return Product{}, ErrNotFound
	}
	return decode(snap)
}

func (r *StoreRepository) Create(ctx context.Context, p Product) (Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(Ref(p.ID), p)
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *StoreRepository) Update(ctx context.Context, id string, p Product) (Product, error) {
	p.ID = id
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, Ref(id))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return ErrNotFound
		}
		return tx.Set(Ref(id), p)
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, Ref(id))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return ErrNotFound
		}
		return tx.Delete(Ref(id))
	})
}

// Reset deletes every product and writes products in one transaction.
func (r *StoreRepository) Reset(ctx context.Context, products []Product) error {
	existing, err := r.store.List(ctx, Collection)
	if err != nil {
		return err
	}
	for i := range products {
		if products[i].ID == "" {
			products[i].ID = uuid.NewString()
		}
	}
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		// read everything first so a concurrent edit forces a retry
		for _, snap := range existing {
			if _, err := tx.Get(ctx, snap.Ref); err != nil {
				return err
			}
		}
		for _, snap := range existing {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		for _, p := range products {
			if err := tx.Set(Ref(p.ID), p); err != nil {
				return err
			}
		}
		return nil
	})
}
