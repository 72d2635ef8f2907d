// internal/models/comparison.go
package models

import "time"

// ResolutionTier labels which cache tier served a resolution.
type ResolutionTier string

const (
	TierGlobalCache   ResolutionTier = "global_cache"
	TierRetailerCache ResolutionTier = "retailer_cache"
	TierLiveSearch    ResolutionTier = "live_search"
	TierNone          ResolutionTier = "none"
)

// RetailerMatch is the per-retailer outcome inside one ComparisonResult.
// Product is nil when the retailer produced no acceptable match.
type RetailerMatch struct {
	Product     *Product `json:"product"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning,omitempty"`
	ResultCount int      `json:"resultCount"`
}

// BestPrice summarizes the winning retailer and the dollar savings
// versus the priciest matched retailer.
type BestPrice struct {
	Retailer string  `json:"retailer"`
	Product  Product `json:"product"`
	Savings  float64 `json:"savings"`
}

// ComparisonResult is the output unit for one resolved product name.
type ComparisonResult struct {
	Query     string                   `json:"query"`
	Matches   map[string]RetailerMatch `json:"matches"`
	BestPrice *BestPrice               `json:"bestPrice,omitempty"`
	Tier      ResolutionTier           `json:"tier"`
	Timestamp time.Time                `json:"timestamp"`
}
