package category

import "github.com/wichananm65/heladeria-backend/internal/docstore"

// Collection is the docstore collection holding flavor categories.
const Collection = "categories"

// Category groups flavors on the storefront. Flavors point at a category by
// its slug.
type Category struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
	Order int    `json:"ord"`
}

func Ref(slug string) docstore.Ref {
	return docstore.NewRef(Collection, slug)
}

// AllSlug lists every flavor regardless of category.
const AllSlug = "todos"

// Defaults is what an empty shop starts with.
func Defaults() []Category {
	return []Category{
		{Slug: AllSlug, Title: "Todos los sabores", Order: 6},
		{Slug: "chocolates", Title: "Chocolates", Order: 5},
		{Slug: "dulce-de-leche", Title: "Dulce de leche", Order: 4},
		{Slug: "cremas", Title: "Cremas especiales", Order: 3},
		{Slug: "cremas-extras", Title: "Cremas con extras", Order: 2},
		{Slug: "frutales", Title: "Frutales / Frescos", Order: 1},
	}
}
