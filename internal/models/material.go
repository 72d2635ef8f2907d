// internal/models/material.go
package models

import "time"

// MaterialSource tags how a global material record came to exist.
type MaterialSource string

const (
	MaterialSourceScraped MaterialSource = "scraped"
	MaterialSourceCurated MaterialSource = "curated"
)

// PriceInfo is the last-known pricing a retailer reported for a material.
type PriceInfo struct {
	Price    float64   `json:"price"`
	URL      string    `json:"url"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Brand    string    `json:"brand,omitempty"`
	PricedAt time.Time `json:"pricedAt"`
}

// GlobalMaterial is the ZIP-scoped canonical material record shared by
// every project. Populated from past successful resolutions and mutated
// in place on subsequent hits; never deleted by the engine.
type GlobalMaterial struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	NameKey        string               `json:"nameKey"`
	Description    string               `json:"description,omitempty"`
	Aliases        []string             `json:"aliases"`
	ZipCode        string               `json:"zipCode"`
	RetailerPrices map[string]PriceInfo `json:"retailerPrices"`
	MatchCount     int                  `json:"matchCount"`
	Source         MaterialSource       `json:"source"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// HasAlias reports whether the (lowercased) alias is already present.
func (m *GlobalMaterial) HasAlias(alias string) bool {
	for _, a := range m.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// MergeAliases unions the given aliases into the record, lowercased and
// deduplicated. The alias set only ever grows.
func (m *GlobalMaterial) MergeAliases(aliases []string) {
	for _, a := range aliases {
		lowered := NormalizeName(a)
		if lowered == "" || m.HasAlias(lowered) {
			continue
		}
		m.Aliases = append(m.Aliases, lowered)
	}
}

// RetailerCacheEntry is the narrower per-retailer cache record, keyed by
// normalized product name within one retailer's namespace.
type RetailerCacheEntry struct {
	Product       Product   `json:"product"`
	SearchQueries []string  `json:"searchQueries"`
	MatchCount    int       `json:"matchCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasQuery reports whether the lowercased query was seen before.
func (e *RetailerCacheEntry) HasQuery(query string) bool {
	lowered := NormalizeName(query)
	for _, q := range e.SearchQueries {
		if q == lowered {
			return true
		}
	}
	return false
}
