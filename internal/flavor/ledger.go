package flavor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

var (
	ErrNotFound       = errors.New("flavor not found")
	ErrNegativeWeight = errors.New("flavor weight cannot be negative")
	ErrAmbiguousName  = errors.New("more than one flavor has that name")
	ErrAlreadyExists  = errors.New("flavor already exists")
	ErrNameRequired   = errors.New("flavor name is required")
)

// GetInTx reads a flavor by id inside tx.
func GetInTx(ctx context.Context, tx docstore.Tx, id string) (Flavor, error) {
	snap, err := tx.Get(ctx, Ref(id))
	if err != nil {
		return Flavor{}, err
	}
	if !snap.Exists {
		return Flavor{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	var f Flavor
	if err := snap.DataTo(&f); err != nil {
		return Flavor{}, fmt.Errorf("decode flavor %s: %w", id, err)
	}
	f.ID = id
	return f, nil
}

// SetWeightInTx buffers a new stock weight for id in tx. The flavor must have
// been read earlier in the same transaction.
func SetWeightInTx(tx docstore.Tx, id string, grams float64, at time.Time) error {
	if grams < 0 {
		return fmt.Errorf("%s: %w", id, ErrNegativeWeight)
	}
	return tx.Update(Ref(id), docstore.Fields{
		"weight":    grams,
		"updatedAt": at,
	})
}
