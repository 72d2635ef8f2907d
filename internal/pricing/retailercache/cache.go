// internal/pricing/retailercache/cache.go
package retailercache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/common/metrics"
	"pricing-workers/internal/models"
)

const (
	entryKeyPrefix = "pcache:"
	queryKeyPrefix = "pcache:q:"
)

// Cache is the per-retailer product tier: one entry per retailer per
// product, keyed by the product's normalized name with a secondary
// index of every search query that ever resolved to it.
type Cache struct {
	rdb    *redis.Client
	logger logger.Logger
}

func New(rdb *redis.Client, log logger.Logger) *Cache {
	return &Cache{rdb: rdb, logger: log}
}

func entryKey(retailer, nameKey string) string {
	return entryKeyPrefix + retailer + ":" + nameKey
}

func queryKey(retailer, normalized string) string {
	return queryKeyPrefix + retailer + ":" + normalized
}

// Lookup finds a cached product for the query at the given retailer.
// The product's own name key is tried first, then the query index. A
// nil return with nil error means miss.
func (c *Cache) Lookup(ctx context.Context, retailer string, query models.ProductQuery) (*models.RetailerCacheEntry, error) {
	normalized := models.NormalizeName(query.Name)
	if normalized == "" {
		return nil, nil
	}

	entry, err := c.getEntry(ctx, retailer, models.NameKey(query.Name))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		nameKey, err := c.rdb.Get(ctx, queryKey(retailer, normalized)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("query index read: %w", err)
		}
		entry, err = c.getEntry(ctx, retailer, nameKey)
		if err != nil {
			return nil, err
		}
	}
	if entry == nil {
		return nil, nil
	}

	metrics.CacheHitsTotal.WithLabelValues(string(models.TierRetailerCache)).Inc()
	c.recordHit(retailer, entry)
	return entry, nil
}

func (c *Cache) getEntry(ctx context.Context, retailer, nameKey string) (*models.RetailerCacheEntry, error) {
	raw, err := c.rdb.Get(ctx, entryKey(retailer, nameKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entry read: %w", err)
	}
	var entry models.RetailerCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("entry decode: %w", err)
	}
	return &entry, nil
}

// recordHit bumps the entry's match counter off the request path.
func (c *Cache) recordHit(retailer string, entry *models.RetailerCacheEntry) {
	nameKey := models.NameKey(entry.Product.Name)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		current, err := c.getEntry(ctx, retailer, nameKey)
		if err != nil || current == nil {
			return
		}
		current.MatchCount++
		current.UpdatedAt = time.Now().UTC()
		if err := c.writeEntry(ctx, retailer, nameKey, current); err != nil {
			c.logger.Warn("retailer cache hit count failed", map[string]interface{}{
				"retailer": retailer,
				"name_key": nameKey,
				"error":    err.Error(),
			})
		}
	}()
}

// Save upserts the product under its own name key and records the query
// that found it, so future lookups with the same wording hit directly.
func (c *Cache) Save(ctx context.Context, retailer string, query models.ProductQuery, product models.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	normalized := models.NormalizeName(query.Name)
	nameKey := models.NameKey(product.Name)

	entry, err := c.getEntry(ctx, retailer, nameKey)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &models.RetailerCacheEntry{Product: product}
	} else {
		entry.Product = product
		entry.MatchCount++
	}
	if !entry.HasQuery(normalized) {
		entry.SearchQueries = append(entry.SearchQueries, normalized)
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := c.writeEntry(ctx, retailer, nameKey, entry); err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, queryKey(retailer, normalized), nameKey, 0).Err(); err != nil {
		return fmt.Errorf("query index write: %w", err)
	}
	return nil
}

func (c *Cache) writeEntry(ctx context.Context, retailer, nameKey string, entry *models.RetailerCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, entryKey(retailer, nameKey), raw, 0).Err(); err != nil {
		return fmt.Errorf("entry write: %w", err)
	}
	return nil
}
