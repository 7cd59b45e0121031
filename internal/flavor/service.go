package flavor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/textnorm"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

// StockWatcher is told about committed stock changes.
type StockWatcher interface {
	StockChanged(ctx context.Context, f Flavor, before float64)
}

type Service struct {
	store   docstore.Store
	watcher StockWatcher
	now     func() time.Time
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithWatcher sets the watcher notified after stock edits.
func (s *Service) WithWatcher(w StockWatcher) *Service {
	s.watcher = w
	return s
}

func decode(snap docstore.Snapshot) (Flavor, error) {
	var f Flavor
	if err := snap.DataTo(&f); err != nil {
		return Flavor{}, err
	}
	f.ID = snap.Ref.ID
	return f, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]Flavor, error) {
	snaps, err := s.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Flavor, 0, len(snaps))
	for _, snap := range snaps {
		f, err := decode(snap)
		if err != nil {
			return nil, fmt.Errorf("decode flavor %s: %w", snap.Ref.ID, err)
		}
		if activeOnly && !f.Active {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return textnorm.Fold(out[i].Name) < textnorm.Fold(out[j].Name)
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (Flavor, error) {
	snap, err := s.store.Get(ctx, Ref(id))
	if err != nil {
		return Flavor{}, err
	}
	if !snap.Exists {
		return Flavor{}, ErrNotFound
	}
	return decode(snap)
}

func validate(f Flavor) error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrNameRequired
	}
	if f.Weight < 0 {
		return ErrNegativeWeight
	}
	return nil
}

// Create stores a new flavor. A missing id gets a uuid.
func (s *Service) Create(ctx context.Context, f Flavor) (Flavor, error) {
	if err := validate(f); err != nil {
		return Flavor{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := s.now()
	f.Name = strings.TrimSpace(f.Name)
	f.Weight = weight.Round(f.Weight)
	f.CreatedAt = now
	f.UpdatedAt = now

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, Ref(f.ID))
		if err != nil {
			return err
		}
		if snap.Exists {
			return ErrAlreadyExists
		}
		return tx.Set(Ref(f.ID), f)
	})
	if err != nil {
		return Flavor{}, err
	}
	return f, nil
}

// Update changes name, category and active flag. Stock goes through SetStock
// and AdjustStock.
func (s *Service) Update(ctx context.Context, id string, in Flavor) (Flavor, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Flavor{}, ErrNameRequired
	}
	var out Flavor
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		f, err := GetInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		f.Name = strings.TrimSpace(in.Name)
		f.Category = in.Category
		f.Active = in.Active
		f.UpdatedAt = s.now()
		out = f
		return tx.Update(Ref(id), docstore.Fields{
			"name":      f.Name,
			"category":  f.Category,
			"active":    f.Active,
			"updatedAt": f.UpdatedAt,
		})
	})
	if err != nil {
		return Flavor{}, err
	}
	return out, nil
}

// SetStock replaces the stock of a flavor.
func (s *Service) SetStock(ctx context.Context, id string, grams float64) (Flavor, error) {
	return s.changeStock(ctx, id, func(float64) float64 { return grams })
}

// AdjustStock adds delta grams (negative to remove) to a flavor's stock.
func (s *Service) AdjustStock(ctx context.Context, id string, delta float64) (Flavor, error) {
	return s.changeStock(ctx, id, func(current float64) float64 { return current + delta })
}

func (s *Service) changeStock(ctx context.Context, id string, next func(current float64) float64) (Flavor, error) {
	var out Flavor
	var before float64
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		f, err := GetInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		before = f.Weight
		f.Weight = weight.Round(next(f.Weight))
		f.UpdatedAt = s.now()
		out = f
		return SetWeightInTx(tx, id, f.Weight, f.UpdatedAt)
	})
	if err != nil {
		return Flavor{}, err
	}
	if s.watcher != nil {
		s.watcher.StockChanged(ctx, out, before)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := GetInTx(ctx, tx, id); err != nil {
			return err
		}
		return tx.Delete(Ref(id))
	})
}

// Resolve finds the flavor a customer or a legacy order refers to. ref is
// tried as an id first and then as a name, compared without case or accents.
// Only used when orders enter the system; archiving works on ids alone.
func (s *Service) Resolve(ctx context.Context, ref string) (Flavor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Flavor{}, ErrNotFound
	}
	f, err := s.Get(ctx, ref)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Flavor{}, err
	}

	all, err := s.List(ctx, false)
	if err != nil {
		return Flavor{}, err
	}
	want := textnorm.Fold(ref)
	var matches []Flavor
	for _, f := range all {
		if textnorm.Fold(f.Name) == want {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return Flavor{}, fmt.Errorf("%q: %w", ref, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		log.Printf("warning: flavor name %q matches %d flavors", ref, len(matches))
		return Flavor{}, fmt.Errorf("%q: %w", ref, ErrAmbiguousName)
	}
}
