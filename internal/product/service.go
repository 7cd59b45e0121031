package product

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/wichananm65/heladeria-backend/internal/weight"
)

var ErrInvalidPrice = errors.New("price must be greater than zero")

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// List returns the catalog, optionally narrowed to one category.
func (s *Service) List(ctx context.Context, category string) ([]Product, error) {
	all, err := s.repo.List(ctx)
	if err != nil || category == "" {
		return all, err
	}
	out := make([]Product, 0, len(all))
	for _, p := range all {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Product, error) {
	return s.repo.GetByID(ctx, id)
}

// fillFlavorLimit derives grams and the flavor limit of a sized product from
// its title when they were left out.
func fillFlavorLimit(p *Product) {
	if p.Category != CategorySizes {
		return
	}
	grams, err := weight.Resolve(p.Title, p.Grams)
	if err != nil {
		return
	}
	if p.Grams == 0 {
		p.Grams = grams
	}
	if p.MaxFlavors == 0 {
		p.MaxFlavors = weight.MaxFlavors(grams)
	}
}

func normalize(p Product) Product {
	p.Title = strings.TrimSpace(p.Title)
	p.Category = strings.TrimSpace(p.Category)
	p.Price = math.Round(p.Price*100) / 100
	fillFlavorLimit(&p)
	return p
}

func (s *Service) Create(ctx context.Context, p Product) (Product, error) {
	p = normalize(p)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	return s.repo.Create(ctx, p)
}

// Update replaces a product, keeping its creation time.
func (s *Service) Update(ctx context.Context, id string, p Product) (Product, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p = normalize(p)
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = s.now()
	return s.repo.Update(ctx, id, p)
}

func (s *Service) UpdatePrice(ctx context.Context, id string, price float64) (Product, error) {
	if price <= 0 {
		return Product{}, ErrInvalidPrice
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.Price = math.Round(price*100) / 100
	p.UpdatedAt = s.now()
	return s.repo.Update(ctx, id, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ResetProducts replaces all products with the given list (used for dev / seeding).
func (s *Service) ResetProducts(ctx context.Context, products []Product) ([]Product, error) {
	now := s.now()
	out := make([]Product, len(products))
	for i, p := range products {
		p = normalize(p)
		p.CreatedAt, p.UpdatedAt = now, now
		out[i] = p
	}
	if err := s.repo.Reset(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SeedIfEmpty writes the default catalog when there are no products yet.
func (s *Service) SeedIfEmpty(ctx context.Context) (bool, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	_, err = s.ResetProducts(ctx, DefaultCatalog())
	return err == nil, err
}
