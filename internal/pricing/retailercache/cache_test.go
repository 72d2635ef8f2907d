// internal/pricing/retailercache/cache_test.go
package retailercache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/models"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, logger.NewNoOpLogger())
}

func stud() models.Product {
	return models.Product{
		ID:       "hd-123",
		Name:     "2 in. x 4 in. x 96 in. Whitewood Stud",
		Brand:    "Home Depot",
		Price:    3.98,
		URL:      "https://hd/p/123",
		Retailer: "homedepot",
	}
}

func TestCache_SaveAndLookupByQuery(t *testing.T) {
	c := newTestCache(t)
	query := models.ProductQuery{Name: "2x4 lumber", ZipCode: "27513"}
	require.NoError(t, c.Save(context.Background(), "homedepot", query, stud()))

	entry, err := c.Lookup(context.Background(), "homedepot", query)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "hd-123", entry.Product.ID)
	assert.Contains(t, entry.SearchQueries, "2x4 lumber")
}

func TestCache_LookupByProductNameDirectly(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Save(context.Background(), "homedepot",
		models.ProductQuery{Name: "2x4 lumber"}, stud()))

	// Querying with the product's own name skips the query index.
	entry, err := c.Lookup(context.Background(), "homedepot",
		models.ProductQuery{Name: "2 in x 4 in x 96 in Whitewood Stud"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "hd-123", entry.Product.ID)
}

func TestCache_MissReturnsNil(t *testing.T) {
	c := newTestCache(t)
	entry, err := c.Lookup(context.Background(), "homedepot",
		models.ProductQuery{Name: "copper pipe"})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_EntriesAreScopedPerRetailer(t *testing.T) {
	c := newTestCache(t)
	query := models.ProductQuery{Name: "2x4 lumber"}
	require.NoError(t, c.Save(context.Background(), "homedepot", query, stud()))

	entry, err := c.Lookup(context.Background(), "lowes", query)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_SaveMergesQueriesWithoutDuplicates(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Save(ctx, "homedepot", models.ProductQuery{Name: "2x4 lumber"}, stud()))
	require.NoError(t, c.Save(ctx, "homedepot", models.ProductQuery{Name: "2x4 Lumber!"}, stud()))
	require.NoError(t, c.Save(ctx, "homedepot", models.ProductQuery{Name: "framing stud 2x4"}, stud()))

	entry, err := c.Lookup(ctx, "homedepot", models.ProductQuery{Name: "framing stud 2x4"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.ElementsMatch(t, []string{"2x4 lumber", "framing stud 2x4"}, entry.SearchQueries)
	assert.Equal(t, 2, entry.MatchCount, "each merge counts as a match")
}

func TestCache_SaveRefreshesProduct(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	query := models.ProductQuery{Name: "2x4 lumber"}
	require.NoError(t, c.Save(ctx, "homedepot", query, stud()))

	updated := stud()
	updated.Price = 4.48
	require.NoError(t, c.Save(ctx, "homedepot", query, updated))

	entry, err := c.Lookup(ctx, "homedepot", query)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 4.48, entry.Product.Price)
}

func TestCache_SaveRejectsInvalidProduct(t *testing.T) {
	c := newTestCache(t)
	bad := stud()
	bad.Price = 0
	err := c.Save(context.Background(), "homedepot", models.ProductQuery{Name: "2x4"}, bad)
	assert.ErrorIs(t, err, models.ErrInvalidProduct)
}

func TestCache_LookupIncrementsMatchCount(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	query := models.ProductQuery{Name: "2x4 lumber"}
	require.NoError(t, c.Save(ctx, "homedepot", query, stud()))

	_, err := c.Lookup(ctx, "homedepot", query)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entry, err := c.getEntry(ctx, "homedepot", models.NameKey(stud().Name))
		return err == nil && entry != nil && entry.MatchCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}
