// internal/pricing/search/normalize.go
package search

import (
	"fmt"
	"strconv"
	"strings"

	"pricing-workers/internal/models"
)

// rawResult mirrors one entry of the search API's shopping_results array.
// The upstream shape has varied over time: older payloads carry only a
// currency-formatted price string, newer ones add extracted_price.
type rawResult struct {
	Position       int     `json:"position"`
	ProductID      string  `json:"product_id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Link           string  `json:"link"`
	Source         string  `json:"source"`
	Thumbnail      string  `json:"thumbnail"`
}

// normalize converts a raw search row into a canonical Product. Rows
// missing an id, a title or a positive price are rejected; nothing
// heterogeneous leaks past this function.
func normalize(r rawResult, retailerTag string) (models.Product, bool) {
	price := r.ExtractedPrice
	if price <= 0 {
		price = parsePrice(r.Price)
	}

	id := r.ProductID
	if id == "" && r.Position > 0 {
		// Some payload variants omit product_id; fall back to a
		// position-derived identifier so dedupe still works per response.
		id = fmt.Sprintf("pos-%d", r.Position)
	}

	product := models.Product{
		ID:       id,
		Name:     strings.TrimSpace(r.Title),
		Price:    price,
		URL:      r.Link,
		ImageURL: r.Thumbnail,
		Brand:    strings.TrimSpace(r.Source),
		Retailer: retailerTag,
	}
	if err := product.Validate(); err != nil {
		return models.Product{}, false
	}
	return product, true
}

// parsePrice extracts a positive number from currency-formatted strings
// like "$1,297.00". Returns 0 when no price can be derived.
func parsePrice(s string) float64 {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0
	}
	// Ranges like "$3.98 – $5.25" take the lower bound.
	if idx := strings.IndexAny(cleaned, " –-"); idx > 0 {
		cleaned = cleaned[:idx]
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
