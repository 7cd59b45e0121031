// Package eventlog is the append-only audit trail of what happened to orders.
// Entries are written after the action they describe has committed, so a
// crash in between can lose an entry but never the action itself.
package eventlog

import (
	"context"
	"errors"
	"time"
)

type Type string

const (
	OrderCreated         Type = "ORDER_CREATED"
	OrderStatusChanged   Type = "ORDER_STATUS_CHANGED"
	OrderShippingUpdated Type = "ORDER_SHIPPING_UPDATED"
	OrderArchived        Type = "ORDER_ARCHIVED"
	OrderDeleted         Type = "ORDER_DELETED"
)

// Event is one audit entry.
type Event struct {
	ID        string         `json:"id"`
	OrderID   string         `json:"orderId"`
	Type      Type           `json:"type"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Actor     string         `json:"actor"`
	ActorName string         `json:"actorName,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Query filters List. Zero values match everything; Limit 0 means DefaultLimit.
type Query struct {
	OrderID string
	Types   []Type
	Limit   int
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

func (q Query) matches(e Event) bool {
	if q.OrderID != "" && e.OrderID != q.OrderID {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

var ErrInvalidEvent = errors.New("event needs an order id and a type")

// Repository stores events. List returns newest first.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}
