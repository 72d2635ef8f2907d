// internal/pricing/resolver/bestprice_test.go
package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-workers/internal/models"
)

func matchAt(price float64) models.RetailerMatch {
	return models.RetailerMatch{
		Product:    &models.Product{ID: "p", Name: "Product", Price: price},
		Confidence: 0.9,
	}
}

func TestSelectBestPrice_PicksCheapestRetailer(t *testing.T) {
	best := SelectBestPrice(map[string]models.RetailerMatch{
		"homedepot": matchAt(3.98),
		"lowes":     matchAt(4.25),
	})
	require.NotNil(t, best)
	assert.Equal(t, "homedepot", best.Retailer)
	assert.Equal(t, 3.98, best.Product.Price)
	assert.InDelta(t, 0.27, best.Savings, 0.001)
}

func TestSelectBestPrice_SingleMatchHasZeroSavings(t *testing.T) {
	best := SelectBestPrice(map[string]models.RetailerMatch{
		"homedepot": matchAt(3.98),
		"lowes":     {ResultCount: 12},
	})
	require.NotNil(t, best)
	assert.Equal(t, "homedepot", best.Retailer)
	assert.Equal(t, 0.0, best.Savings)
}

func TestSelectBestPrice_NoMatchesIsNil(t *testing.T) {
	assert.Nil(t, SelectBestPrice(nil))
	assert.Nil(t, SelectBestPrice(map[string]models.RetailerMatch{
		"homedepot": {ResultCount: 3},
	}))
}

func TestSelectBestPrice_IgnoresNonPositivePrices(t *testing.T) {
	best := SelectBestPrice(map[string]models.RetailerMatch{
		"homedepot": matchAt(0),
		"lowes":     matchAt(4.25),
	})
	require.NotNil(t, best)
	assert.Equal(t, "lowes", best.Retailer)
}
