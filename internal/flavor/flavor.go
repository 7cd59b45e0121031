package flavor

import (
	"time"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

// Collection is the docstore collection holding flavors.
const Collection = "flavors"

// Flavor is one ice-cream flavor tracked as stock. Weight is the remaining
// stock in grams and is never negative.
type Flavor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Weight    float64   `json:"weight"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func Ref(id string) docstore.Ref {
	return docstore.NewRef(Collection, id)
}

// Status is how healthy a flavor's stock is.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
)

const (
	DangerBelow  = 1000.0
	WarningBelow = 3000.0
)

func StockStatus(grams float64) Status {
	switch {
	case grams < DangerBelow:
		return StatusDanger
	case grams < WarningBelow:
		return StatusWarning
	default:
		return StatusOK
	}
}

func severity(s Status) int {
	switch s {
	case StatusDanger:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Worsened reports whether going from before to after grams moves the flavor
// into a worse stock status.
func Worsened(before, after float64) bool {
	return severity(StockStatus(after)) > severity(StockStatus(before))
}
