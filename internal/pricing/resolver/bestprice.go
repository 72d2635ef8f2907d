// internal/pricing/resolver/bestprice.go
package resolver

import "pricing-workers/internal/models"

// SelectBestPrice picks the cheapest matched retailer and reports the
// savings against the most expensive one. Returns nil when no retailer
// produced a priced match.
func SelectBestPrice(matches map[string]models.RetailerMatch) *models.BestPrice {
	var (
		best     *models.BestPrice
		highest  float64
		anyMatch bool
	)
	for retailer, match := range matches {
		if match.Product == nil || match.Product.Price <= 0 {
			continue
		}
		price := match.Product.Price
		if !anyMatch || price < best.Product.Price {
			best = &models.BestPrice{Retailer: retailer, Product: *match.Product}
		}
		if price > highest {
			highest = price
		}
		anyMatch = true
	}
	if best == nil {
		return nil
	}
	best.Savings = highest - best.Product.Price
	return best
}
