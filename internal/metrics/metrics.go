// Package metrics aggregates completed orders for the admin dashboard and the
// storefront's best sellers.
package metrics

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/wichananm65/heladeria-backend/internal/order"
)

var ErrInvalidMonth = errors.New("month must look like 2006-01")

// OrderLister reads orders from storage.
type OrderLister interface {
	All(ctx context.Context, keep func(order.Order) bool) ([]order.Order, error)
}

// Report summarises completed orders. Day keys are local dates (2006-01-02).
type Report struct {
	TotalRevenue  float64            `json:"totalRevenue"`
	TotalOrders   int                `json:"totalOrders"`
	ArchivedCount int                `json:"archivedCount"`
	SalesByDay    map[string]float64 `json:"salesByDay"`
	OrdersByDay   map[string]int     `json:"ordersByDay"`
	Products      map[string]int     `json:"products"`
	// Days lists every day of the requested month, for charts.
	Days []string `json:"days,omitempty"`
}

// Seller is one line of the best sellers list.
type Seller struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

type Service struct {
	orders OrderLister
	loc    *time.Location
}

// NewService aggregates days in loc, UTC when nil.
func NewService(orders OrderLister, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{orders: orders, loc: loc}
}

func completed(o order.Order) bool {
	return o.Status == order.StatusCompleted
}

// DaysOfMonth returns every date of the given month as 2006-01-02.
func DaysOfMonth(year int, month time.Month) []string {
	var days []string
	for d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC); d.Month() == month; d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days
}

func productKey(it order.Item) string {
	switch {
	case it.ProductID != "":
		return it.ProductID
	case it.Title != "":
		return it.Title
	}
	return "unknown"
}

// Report aggregates completed orders. A non-empty month (2006-01) keeps only
// orders created in that month. Every completed order counts towards
// OrdersByDay and ArchivedCount; revenue and product quantities only come from
// orders with a positive total.
func (s *Service) Report(ctx context.Context, month string) (Report, error) {
	keep := completed
	var days []string
	if month != "" {
		start, err := time.ParseInLocation("2006-01", month, s.loc)
		if err != nil {
			return Report{}, ErrInvalidMonth
		}
		end := start.AddDate(0, 1, 0)
		days = DaysOfMonth(start.Year(), start.Month())
		keep = func(o order.Order) bool {
			return completed(o) && !o.CreatedAt.Before(start) && o.CreatedAt.Before(end)
		}
	}

	orders, err := s.orders.All(ctx, keep)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		SalesByDay:  map[string]float64{},
		OrdersByDay: map[string]int{},
		Products:    map[string]int{},
		Days:        days,
	}
	for _, o := range orders {
		if o.CreatedAt.IsZero() {
			continue
		}
		day := o.CreatedAt.In(s.loc).Format("2006-01-02")
		r.OrdersByDay[day]++
		if o.Archived {
			r.ArchivedCount++
		}
		if o.Total <= 0 {
			continue
		}
		r.TotalRevenue += o.Total
		r.TotalOrders++
		r.SalesByDay[day] = round(r.SalesByDay[day] + o.Total)
		for _, it := range o.Items {
			if it.Quantity > 0 {
				r.Products[productKey(it)] += it.Quantity
			}
		}
	}
	r.TotalRevenue = round(r.TotalRevenue)
	return r, nil
}

// BestSellers ranks products by quantity sold in completed orders.
func (s *Service) BestSellers(ctx context.Context, limit, offset int) ([]Seller, error) {
	orders, err := s.orders.All(ctx, completed)
	if err != nil {
		return nil, err
	}
	byKey := map[string]*Seller{}
	for _, o := range orders {
		for _, it := range o.Items {
			if it.Quantity <= 0 {
				continue
			}
			key := productKey(it)
			if byKey[key] == nil {
				byKey[key] = &Seller{ProductID: it.ProductID, Title: it.Title}
			}
			byKey[key].Quantity += it.Quantity
		}
	}
	out := make([]Seller, 0, len(byKey))
	for _, seller := range byKey {
		out = append(out, *seller)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Title < out[j].Title
	})
	if offset >= len(out) {
		return []Seller{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
