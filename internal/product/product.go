package product

import (
	"time"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

// Collection is the docstore collection holding the catalog.
const Collection = "products"

// CategorySizes is the category of products sold by weight with a choice of
// flavors.
const CategorySizes = "tamaños"

// Product is one entry of the storefront catalog. MaxFlavors is the number of
// flavors a customer may pick, 0 for products without flavors.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Grams       float64   `json:"grams,omitempty"`
	MaxFlavors  int       `json:"maxGustos"`
	Image       string    `json:"image,omitempty"`
	Featured    bool      `json:"featured"`
	BestSeller  bool      `json:"masVendido"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func Ref(id string) docstore.Ref {
	return docstore.NewRef(Collection, id)
}

// DefaultCatalog is what an empty shop starts with.
func DefaultCatalog() []Product {
	return []Product{
		{
			ID:          "cuarto",
			Title:       "Cuarto de helado",
			Description: "250 g de helado artesanal, hasta 3 gustos",
			Price:       2500,
			Category:    CategorySizes,
			Grams:       250,
			MaxFlavors:  3,
			BestSeller:  true,
		},
		{
			ID:          "medio",
			Title:       "Medio KG de helado",
			Description: "500 g de helado artesanal, hasta 4 gustos",
			Price:       4500,
			Category:    CategorySizes,
			Grams:       500,
			MaxFlavors:  4,
			Featured:    true,
		},
		{
			ID:          "kilo",
			Title:       "KG de helado",
			Description: "1 kg de helado artesanal, hasta 4 gustos",
			Price:       8000,
			Category:    CategorySizes,
			Grams:       1000,
			MaxFlavors:  4,
			Featured:    true,
		},
	}
}
