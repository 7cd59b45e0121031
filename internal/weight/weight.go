// Package weight maps the size of an ice-cream product to the grams it takes
// out of stock. It is the only place that knows how titles translate to grams.
package weight

import (
	"fmt"
	"math"
	"strings"

	"github.com/wichananm65/heladeria-backend/internal/textnorm"
)

const (
	Quarter      = 250.0
	Half         = 500.0
	ThreeQuarter = 750.0
	Kilo         = 1000.0
)

// UnknownWeightError is returned when a title matches no known size.
type UnknownWeightError struct {
	Title string
}

func (e *UnknownWeightError) Error() string {
	return fmt.Sprintf("unknown weight for product %q", e.Title)
}

type pattern struct {
	needles []string
	grams   float64
}

// Checked in order. "3/4" and "tres cuartos" come before "cuarto", and the
// fractional sizes come before the bare "kg" so "Medio KG" is 500 g.
var patterns = []pattern{
	{needles: []string{"3/4", "tres cuartos"}, grams: ThreeQuarter},
	{needles: []string{"1/4", "cuarto"}, grams: Quarter},
	{needles: []string{"medio", "1/2"}, grams: Half},
	{needles: []string{"1kg", "1 kg", "kilo"}, grams: Kilo},
	{needles: []string{"kg"}, grams: Kilo},
}

// FromTitle returns the total grams for a product title.
func FromTitle(title string) (float64, error) {
	normalized := textnorm.Fold(title)
	for _, p := range patterns {
		for _, n := range p.needles {
			if strings.Contains(normalized, n) {
				return p.grams, nil
			}
		}
	}
	return 0, &UnknownWeightError{Title: title}
}

// Resolve returns the total grams for a line item. Explicit size metadata wins
// over the title.
func Resolve(title string, grams float64) (float64, error) {
	if grams > 0 {
		return grams, nil
	}
	return FromTitle(title)
}

// MaxFlavors is how many flavors fit in a container of the given size.
func MaxFlavors(grams float64) int {
	if grams <= Quarter {
		return 3
	}
	return 4
}

// Round rounds grams to hundredths of a gram, the precision stock is kept in.
func Round(grams float64) float64 {
	return math.Round(grams*100) / 100
}
