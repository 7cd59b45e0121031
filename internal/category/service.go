package category

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/textnorm"
)

var ErrSlugRequired = errors.New("category slug and title are required")

// FlavorLister lists flavors for the storefront.
type FlavorLister interface {
	List(ctx context.Context, activeOnly bool) ([]flavor.Flavor, error)
}

// Service provides business logic for categories.
type Service struct {
	repo    Repository
	flavors FlavorLister
}

func NewService(r Repository, flavors FlavorLister) *Service {
	return &Service{repo: r, flavors: flavors}
}

// List returns up to `limit` categories.
func (s *Service) List(ctx context.Context, limit int) []Category {
	items, err := s.repo.List(ctx)
	if err != nil {
		log.Printf("warning: could not list categories: %v", err)
		return []Category{}
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Flavors returns the active flavors of a category. Flavor categories are
// compared folded so "Dulce de Leche" matches the dulce-de-leche slug.
func (s *Service) Flavors(ctx context.Context, slug string) ([]flavor.Flavor, error) {
	if slug != AllSlug {
		if _, err := s.repo.Get(ctx, slug); err != nil {
			return nil, err
		}
	}
	all, err := s.flavors.List(ctx, true)
	if err != nil {
		return nil, err
	}
	if slug == AllSlug {
		return all, nil
	}
	out := make([]flavor.Flavor, 0)
	for _, f := range all {
		if toSlug(f.Category) == slug {
			out = append(out, f)
		}
	}
	return out, nil
}

func toSlug(s string) string {
	return strings.Join(strings.Fields(textnorm.Fold(s)), "-")
}

// Put creates or replaces a category.
func (s *Service) Put(ctx context.Context, c Category) (Category, error) {
	c.Slug = toSlug(c.Slug)
	c.Title = strings.TrimSpace(c.Title)
	if c.Slug == "" || c.Title == "" {
		return Category{}, ErrSlugRequired
	}
	if err := s.repo.Put(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

// SeedIfEmpty writes the default categories when there are none.
func (s *Service) SeedIfEmpty(ctx context.Context) (bool, error) {
	existing, err := s.repo.List(ctx)
	if err != nil || len(existing) > 0 {
		return false, err
	}
	for _, c := range Defaults() {
		if err := s.repo.Put(ctx, c); err != nil {
			return false, err
		}
	}
	return true, nil
}
