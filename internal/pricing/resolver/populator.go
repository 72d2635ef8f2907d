// internal/pricing/resolver/populator.go
package resolver

import (
	"context"
	"time"

	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/models"
	"pricing-workers/internal/pricing/oracle"
)

const populateTimeout = 30 * time.Second

// AliasGenerator is the slice of the oracle the populator needs.
type AliasGenerator interface {
	GenerateAliases(ctx context.Context, name, query string) oracle.AliasSet
}

// MaterialWriter is the material-cache surface the populator writes to.
type MaterialWriter interface {
	Upsert(ctx context.Context, material *models.GlobalMaterial) error
}

// Populator turns a successful live resolution into a global material
// record so the next project asking for the same thing never hits the
// search API. It runs detached: the triggering request has already been
// answered by the time this work starts.
type Populator struct {
	materials MaterialWriter
	oracle    AliasGenerator
	order     []string
	logger    logger.Logger
}

// NewPopulator builds a populator. order is the retailer priority used
// to pick the canonical material name.
func NewPopulator(materials MaterialWriter, gen AliasGenerator, order []string, log logger.Logger) *Populator {
	return &Populator{materials: materials, oracle: gen, order: order, logger: log}
}

// PopulateAsync spawns the cache write in the background, detached from
// the request context.
func (p *Populator) PopulateAsync(query models.ProductQuery, matches map[string]models.RetailerMatch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), populateTimeout)
		defer cancel()
		p.populate(ctx, query, matches)
	}()
}

func (p *Populator) populate(ctx context.Context, query models.ProductQuery, matches map[string]models.RetailerMatch) {
	canonical := p.canonicalProduct(matches)
	if canonical == nil {
		return
	}

	aliasSet := p.oracle.GenerateAliases(ctx, canonical.Name, query.Name)

	now := time.Now().UTC()
	material := &models.GlobalMaterial{
		Name:           canonical.Name,
		NameKey:        models.NameKey(canonical.Name),
		Description:    aliasSet.Description,
		ZipCode:        query.ZipCode,
		RetailerPrices: map[string]models.PriceInfo{},
		Source:         models.MaterialSourceScraped,
	}
	material.MergeAliases(aliasSet.Aliases)
	material.MergeAliases([]string{query.Name})

	for retailer, match := range matches {
		if match.Product == nil {
			continue
		}
		material.RetailerPrices[retailer] = models.PriceInfo{
			Price:    match.Product.Price,
			URL:      match.Product.URL,
			ImageURL: match.Product.ImageURL,
			Brand:    match.Product.Brand,
			PricedAt: now,
		}
	}

	if err := p.materials.Upsert(ctx, material); err != nil {
		p.logger.Warn("material cache population failed", map[string]interface{}{
			"query": query.Name,
			"zip":   query.ZipCode,
			"error": err.Error(),
		})
		return
	}
	p.logger.Debug("material cache populated", map[string]interface{}{
		"name_key":  material.NameKey,
		"retailers": len(material.RetailerPrices),
	})
}

// canonicalProduct picks the name-giving match: the first retailer in
// priority order that actually matched.
func (p *Populator) canonicalProduct(matches map[string]models.RetailerMatch) *models.Product {
	for _, tag := range p.order {
		if match, ok := matches[tag]; ok && match.Product != nil {
			return match.Product
		}
	}
	return nil
}
