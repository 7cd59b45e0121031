package order

import (
	"time"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

// Collection is the docstore collection holding orders.
const Collection = "orders"

type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
// Completed and cancelled orders only move on through archiving.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is one line of an order. Gustos holds flavor ids; Grams is optional
// explicit size metadata that takes precedence over the title.
type Item struct {
	ProductID string   `json:"productId"`
	Title     string   `json:"title"`
	Price     float64  `json:"price"`
	Quantity  int      `json:"quantity"`
	Gustos    []string `json:"gustos"`
	Category  string   `json:"category"`
	Grams     float64  `json:"grams,omitempty"`
}

type Shipping struct {
	Estimated float64  `json:"estimated"`
	Final     *float64 `json:"final"`
	Zone      string   `json:"zone"`
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

// Order is a customer purchase. Once Archived is true its stock has been
// deducted and the order no longer changes.
type Order struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId,omitempty"`
	Customer    Customer   `json:"customer"`
	Items       []Item     `json:"items"`
	Total       float64    `json:"total"`
	Shipping    Shipping   `json:"shipping"`
	Status      Status     `json:"status"`
	Archived    bool       `json:"archived"`
	ArchivedAt  *time.Time `json:"archivedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func Ref(id string) docstore.Ref {
	return docstore.NewRef(Collection, id)
}
