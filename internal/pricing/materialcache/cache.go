// internal/pricing/materialcache/cache.go
package materialcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/common/metrics"
	"pricing-workers/internal/models"
	"pricing-workers/internal/pricing/oracle"
)

const (
	docKeyPrefix   = "material:"
	aliasKeyPrefix = "material:alias:"

	// esIndex is where materials are mirrored for fuzzy lookup.
	esIndex = "materials"

	// maxCandidates caps how many fuzzy matches are handed to the oracle.
	maxCandidates = 5
)

// Selector is the slice of the oracle the cache needs to validate a
// fuzzy candidate set against the original query.
type Selector interface {
	SelectBest(ctx context.Context, query string, candidates []oracle.Candidate) oracle.Selection
}

// Cache is the global material tier: one document per material per ZIP,
// shared across all projects. Redis holds the documents and the alias
// index; Elasticsearch, when configured, adds fuzzy name matching on top.
type Cache struct {
	rdb    *redis.Client
	es     *elasticsearch.Client
	oracle Selector
	logger logger.Logger
}

// New builds the cache. es may be nil, in which case lookups fall back
// to exact alias matching only.
func New(rdb *redis.Client, es *elasticsearch.Client, sel Selector, log logger.Logger) *Cache {
	return &Cache{rdb: rdb, es: es, oracle: sel, logger: log}
}

func docKey(zip, nameKey string) string {
	return docKeyPrefix + zip + ":" + nameKey
}

func aliasKey(zip, alias string) string {
	return aliasKeyPrefix + zip + ":" + alias
}

// Match is a cache hit that passed validation.
type Match struct {
	Material   *models.GlobalMaterial
	Confidence float64
	Exact      bool
}

// Usable reports whether the hit is strong enough to short-circuit live
// search: the oracle must be at or above threshold and the material must
// actually carry prices.
func (m *Match) Usable(threshold float64) bool {
	if m == nil || m.Material == nil {
		return false
	}
	return m.Confidence >= threshold && len(m.Material.RetailerPrices) > 0
}

// Lookup resolves a product query against the global tier. An exact
// alias hit is returned as-is with confidence 1.0; otherwise fuzzy
// candidates from Elasticsearch are judged by the oracle. A nil return
// with nil error means miss.
func (c *Cache) Lookup(ctx context.Context, query models.ProductQuery) (*Match, error) {
	normalized := models.NormalizeName(query.Name)
	if normalized == "" {
		return nil, nil
	}

	exact, err := c.lookupExact(ctx, query.ZipCode, normalized)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		c.recordHit(exact)
		return &Match{Material: exact, Confidence: 1.0, Exact: true}, nil
	}

	candidates, err := c.lookupFuzzy(ctx, query.ZipCode, normalized)
	if err != nil {
		c.logger.Warn("material fuzzy lookup failed, treating as miss", map[string]interface{}{
			"query": query.Name,
			"error": err.Error(),
		})
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	oracleCandidates := make([]oracle.Candidate, len(candidates))
	for i, m := range candidates {
		oracleCandidates[i] = oracle.Candidate{Name: m.Name, Price: lowestPrice(m)}
	}
	sel := c.oracle.SelectBest(ctx, query.Name, oracleCandidates)
	if sel.Index < 0 || sel.Index >= len(candidates) {
		return nil, nil
	}

	match := candidates[sel.Index]
	c.recordHit(match)
	return &Match{Material: match, Confidence: sel.Confidence}, nil
}

func (c *Cache) lookupExact(ctx context.Context, zip, normalized string) (*models.GlobalMaterial, error) {
	nameKey, err := c.rdb.Get(ctx, aliasKey(zip, normalized)).Result()
	if err == redis.Nil {
		// A material saved before any alias may only be reachable by
		// its own name key.
		nameKey = models.NameKey(normalized)
	} else if err != nil {
		return nil, fmt.Errorf("alias index read: %w", err)
	}
	return c.getDoc(ctx, zip, nameKey)
}

func (c *Cache) getDoc(ctx context.Context, zip, nameKey string) (*models.GlobalMaterial, error) {
	raw, err := c.rdb.Get(ctx, docKey(zip, nameKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("material read: %w", err)
	}
	var m models.GlobalMaterial
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("material decode: %w", err)
	}
	return &m, nil
}

func (c *Cache) lookupFuzzy(ctx context.Context, zip, normalized string) ([]*models.GlobalMaterial, error) {
	if c.es == nil {
		return nil, nil
	}

	query := map[string]interface{}{
		"size": maxCandidates,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":     normalized,
						"fields":    []string{"name", "aliases"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"zip_code": zip},
				},
			},
		},
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(esIndex),
		c.es.Search.WithBody(&body),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.GlobalMaterial `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]*models.GlobalMaterial, 0, len(parsed.Hits.Hits))
	for i := range parsed.Hits.Hits {
		m := parsed.Hits.Hits[i].Source
		out = append(out, &m)
	}
	return out, nil
}

// recordHit bumps the match counter off the request path. Lost
// increments under contention are acceptable.
func (c *Cache) recordHit(m *models.GlobalMaterial) {
	metrics.CacheHitsTotal.WithLabelValues(string(models.TierGlobalCache)).Inc()
	zip, nameKey := m.ZipCode, m.NameKey
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.incrementMatchCount(ctx, zip, nameKey); err != nil {
			c.logger.Warn("match count increment failed", map[string]interface{}{
				"name_key": nameKey,
				"error":    err.Error(),
			})
		}
	}()
}

func (c *Cache) incrementMatchCount(ctx context.Context, zip, nameKey string) error {
	doc, err := c.getDoc(ctx, zip, nameKey)
	if err != nil || doc == nil {
		return err
	}
	doc.MatchCount++
	doc.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, docKey(zip, nameKey), raw, 0).Err()
}

// Upsert merges the incoming material into the stored document:
// aliases union, retailer prices overwrite per retailer, description
// kept when the incoming one is empty. The alias index and the
// Elasticsearch mirror are refreshed best effort.
func (c *Cache) Upsert(ctx context.Context, incoming *models.GlobalMaterial) error {
	if incoming.NameKey == "" {
		incoming.NameKey = models.NameKey(incoming.Name)
	}

	existing, err := c.getDoc(ctx, incoming.ZipCode, incoming.NameKey)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	merged := incoming
	if existing != nil {
		merged = existing
		merged.MergeAliases(incoming.Aliases)
		if incoming.Description != "" {
			merged.Description = incoming.Description
		}
		if merged.RetailerPrices == nil {
			merged.RetailerPrices = map[string]models.PriceInfo{}
		}
		for retailer, info := range incoming.RetailerPrices {
			merged.RetailerPrices[retailer] = info
		}
		merged.MatchCount++
	} else {
		merged.MergeAliases([]string{models.NormalizeName(merged.Name)})
		merged.CreatedAt = now
	}
	merged.UpdatedAt = now
	if merged.ID == "" {
		merged.ID = merged.ZipCode + ":" + merged.NameKey
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, docKey(merged.ZipCode, merged.NameKey), raw, 0).Err(); err != nil {
		return fmt.Errorf("material write: %w", err)
	}

	for _, alias := range merged.Aliases {
		if err := c.rdb.Set(ctx, aliasKey(merged.ZipCode, alias), merged.NameKey, 0).Err(); err != nil {
			return fmt.Errorf("alias index write: %w", err)
		}
	}

	c.indexDocument(ctx, merged, raw)
	return nil
}

// indexDocument mirrors the material into Elasticsearch. Failures are
// logged, not returned: the Redis document is the source of truth.
func (c *Cache) indexDocument(ctx context.Context, m *models.GlobalMaterial, raw []byte) {
	if c.es == nil {
		return
	}
	res, err := c.es.Index(
		esIndex,
		bytes.NewReader(raw),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(m.ID),
	)
	if err != nil {
		c.logger.Warn("material index failed", map[string]interface{}{
			"name_key": m.NameKey,
			"error":    err.Error(),
		})
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		c.logger.Warn("material index rejected", map[string]interface{}{
			"name_key": m.NameKey,
			"status":   res.Status(),
		})
	}
}

func lowestPrice(m *models.GlobalMaterial) float64 {
	lowest := 0.0
	for _, info := range m.RetailerPrices {
		if info.Price <= 0 {
			continue
		}
		if lowest == 0 || info.Price < lowest {
			lowest = info.Price
		}
	}
	return lowest
}
