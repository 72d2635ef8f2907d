// internal/pricing/resolver/resolver.go
package resolver

import (
	"context"
	"sync"
	"time"

	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/common/metrics"
	"pricing-workers/internal/models"
	"pricing-workers/internal/pricing/materialcache"
	"pricing-workers/internal/pricing/oracle"
	"pricing-workers/pkg/retailers"
)

// MaterialStore is the global-tier surface the resolver reads.
type MaterialStore interface {
	Lookup(ctx context.Context, query models.ProductQuery) (*materialcache.Match, error)
}

// RetailerStore is the per-retailer cache tier.
type RetailerStore interface {
	Lookup(ctx context.Context, retailer string, query models.ProductQuery) (*models.RetailerCacheEntry, error)
	Save(ctx context.Context, retailer string, query models.ProductQuery, product models.Product) error
}

// Searcher performs one live retailer search. It degrades instead of
// erroring: an empty slice means nothing usable came back.
type Searcher interface {
	Search(ctx context.Context, query string, retailer retailers.Retailer) ([]models.Product, int)
}

// Judge is the oracle surface the resolver consults.
type Judge interface {
	SelectBest(ctx context.Context, query string, candidates []oracle.Candidate) oracle.Selection
	ScoreOne(ctx context.Context, query string, candidate oracle.Candidate) oracle.Score
}

// Resolver walks the cache tiers for one product query: global material
// cache, then per-retailer cache, then live search, cheapest tier wins.
type Resolver struct {
	materials MaterialStore
	products  RetailerStore
	search    Searcher
	oracle    Judge
	registry  *retailers.Registry
	populator *Populator
	threshold float64
	logger    logger.Logger
}

func New(materials MaterialStore, products RetailerStore, search Searcher, judge Judge,
	registry *retailers.Registry, populator *Populator, threshold float64, log logger.Logger) *Resolver {
	return &Resolver{
		materials: materials,
		products:  products,
		search:    search,
		oracle:    judge,
		registry:  registry,
		populator: populator,
		threshold: threshold,
		logger:    log,
	}
}

// retailerOutcome is the fan-in unit for one retailer's tier walk.
type retailerOutcome struct {
	tag   string
	match models.RetailerMatch
	live  bool
}

// ResolveOne resolves a single product name. It never returns an error:
// a query nothing matched still produces a result with tier "none" so a
// batch keeps moving.
func (r *Resolver) ResolveOne(ctx context.Context, name, zip string) models.ComparisonResult {
	start := time.Now()
	query := models.ProductQuery{Name: name, ZipCode: zip}

	if result, ok := r.resolveFromMaterials(ctx, query); ok {
		r.finish(result, start)
		return result
	}

	outcomes := r.fanOut(ctx, query)

	matches := make(map[string]models.RetailerMatch, len(outcomes))
	anyLive := false
	anyLiveMatch := false
	for _, out := range outcomes {
		matches[out.tag] = out.match
		if out.live {
			anyLive = true
			if out.match.Product != nil {
				anyLiveMatch = true
			}
		}
	}

	result := models.ComparisonResult{
		Query:     name,
		Matches:   matches,
		BestPrice: SelectBestPrice(matches),
		Timestamp: time.Now().UTC(),
	}
	switch {
	case result.BestPrice == nil:
		result.Tier = models.TierNone
	case anyLive:
		result.Tier = models.TierLiveSearch
	default:
		result.Tier = models.TierRetailerCache
	}

	if anyLiveMatch {
		r.populator.PopulateAsync(query, matches)
	}

	r.finish(result, start)
	return result
}

// resolveFromMaterials is the global tier: a validated material hit with
// prices answers the whole query without touching any retailer.
func (r *Resolver) resolveFromMaterials(ctx context.Context, query models.ProductQuery) (models.ComparisonResult, bool) {
	match, err := r.materials.Lookup(ctx, query)
	if err != nil {
		r.logger.Warn("material lookup failed, falling through", map[string]interface{}{
			"query": query.Name,
			"error": err.Error(),
		})
		return models.ComparisonResult{}, false
	}
	if !match.Usable(r.threshold) {
		return models.ComparisonResult{}, false
	}

	material := match.Material
	matches := make(map[string]models.RetailerMatch, len(material.RetailerPrices))
	for tag, info := range material.RetailerPrices {
		product := &models.Product{
			ID:       material.ID + ":" + tag,
			Name:     material.Name,
			Brand:    info.Brand,
			Price:    info.Price,
			URL:      info.URL,
			ImageURL: info.ImageURL,
			Retailer: tag,
		}
		matches[tag] = models.RetailerMatch{
			Product:    product,
			Confidence: match.Confidence,
			Reasoning:  "known material",
		}
	}

	return models.ComparisonResult{
		Query:     query.Name,
		Matches:   matches,
		BestPrice: SelectBestPrice(matches),
		Tier:      models.TierGlobalCache,
		Timestamp: time.Now().UTC(),
	}, true
}

// fanOut runs the per-retailer walk concurrently and gathers outcomes.
func (r *Resolver) fanOut(ctx context.Context, query models.ProductQuery) []retailerOutcome {
	all := r.registry.All()
	outcomes := make([]retailerOutcome, len(all))

	var wg sync.WaitGroup
	for i, retailer := range all {
		wg.Add(1)
		go func(i int, retailer retailers.Retailer) {
			defer wg.Done()
			outcomes[i] = r.resolveRetailer(ctx, query, retailer)
		}(i, retailer)
	}
	wg.Wait()
	return outcomes
}

// resolveRetailer walks one retailer: cached product first, live search
// when the cache cannot answer confidently.
func (r *Resolver) resolveRetailer(ctx context.Context, query models.ProductQuery, retailer retailers.Retailer) retailerOutcome {
	entry, err := r.products.Lookup(ctx, retailer.Tag, query)
	if err != nil {
		r.logger.Warn("retailer cache lookup failed", map[string]interface{}{
			"retailer": retailer.Tag,
			"query":    query.Name,
			"error":    err.Error(),
		})
	}
	if entry != nil {
		score := r.oracle.ScoreOne(ctx, query.Name, oracle.CandidateFromProduct(entry.Product))
		if score.Confidence >= r.threshold {
			product := entry.Product
			return retailerOutcome{
				tag: retailer.Tag,
				match: models.RetailerMatch{
					Product:     &product,
					Confidence:  score.Confidence,
					Reasoning:   score.Reasoning,
					ResultCount: 1,
				},
			}
		}
		r.logger.Debug("cached product rejected by oracle", map[string]interface{}{
			"retailer":   retailer.Tag,
			"query":      query.Name,
			"confidence": score.Confidence,
		})
	}

	return r.resolveLive(ctx, query, retailer)
}

func (r *Resolver) resolveLive(ctx context.Context, query models.ProductQuery, retailer retailers.Retailer) retailerOutcome {
	results, total := r.search.Search(ctx, query.Name, retailer)
	out := retailerOutcome{
		tag:   retailer.Tag,
		live:  true,
		match: models.RetailerMatch{ResultCount: total},
	}
	if len(results) == 0 {
		return out
	}

	sel := r.oracle.SelectBest(ctx, query.Name, oracle.CandidatesFromProducts(results))
	if sel.Index < 0 || sel.Index >= len(results) {
		return out
	}

	product := results[sel.Index]
	out.match.Product = &product
	out.match.Confidence = sel.Confidence
	out.match.Reasoning = sel.Reasoning

	if err := r.products.Save(ctx, retailer.Tag, query, product); err != nil {
		r.logger.Warn("retailer cache write failed", map[string]interface{}{
			"retailer": retailer.Tag,
			"query":    query.Name,
			"error":    err.Error(),
		})
	}
	return out
}

func (r *Resolver) finish(result models.ComparisonResult, start time.Time) {
	tier := string(result.Tier)
	metrics.ResolutionsTotal.WithLabelValues(tier).Inc()
	metrics.ResolutionDuration.WithLabelValues(tier).Observe(time.Since(start).Seconds())
}
