package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

// InMemoryRepository is a simple in-memory implementation useful for tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events []Event
	// Err, when set, is returned by Append.
	Err error
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, q Query) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0)
	for i := len(r.events) - 1; i >= 0 && len(out) < q.limit(); i-- {
		if q.matches(r.events[i]) {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

// Collection is the docstore collection used by StoreRepository.
const Collection = "order_events"

// StoreRepository keeps events as documents next to the orders they describe.
type StoreRepository struct {
	store docstore.Store
}

func NewStoreRepository(store docstore.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) Append(ctx context.Context, e Event) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(docstore.NewRef(Collection, e.ID), e)
	})
}

func (r *StoreRepository) List(ctx context.Context, q Query) ([]Event, error) {
	snaps, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(snaps))
	for _, snap := range snaps {
		var e Event
		if err := snap.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", snap.Ref.ID, err)
		}
		if q.matches(e) {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > q.limit() {
		events = events[:q.limit()]
	}
	return events, nil
}
