// pkg/retailers/registry.go
package retailers

import "strings"

// Retailer is one configured pricing source. The engine fans out across
// all registered retailers for every product and merges the outcomes.
type Retailer struct {
	Tag             string
	DisplayName     string
	MerchantPattern string
}

// MatchesMerchant reports whether a seller name from the mixed-merchant
// search API belongs to this retailer. Case-insensitive substring match;
// the API is not retailer-scoped, so filtering happens client-side.
func (r Retailer) MatchesMerchant(source string) bool {
	return strings.Contains(strings.ToLower(source), strings.ToLower(r.MerchantPattern))
}

// Registry holds retailers in a fixed priority order. Order matters: the
// cache populator prefers the first retailer with a live match when
// choosing the canonical material name.
type Registry struct {
	retailers []Retailer
	byTag     map[string]Retailer
}

func NewRegistry(retailers []Retailer) *Registry {
	byTag := make(map[string]Retailer, len(retailers))
	for _, r := range retailers {
		byTag[r.Tag] = r
	}
	return &Registry{retailers: retailers, byTag: byTag}
}

// All returns the retailers in registration order.
func (reg *Registry) All() []Retailer {
	return reg.retailers
}

// Get looks up one retailer by tag.
func (reg *Registry) Get(tag string) (Retailer, bool) {
	r, ok := reg.byTag[tag]
	return r, ok
}

// Tags returns the ordered tag list.
func (reg *Registry) Tags() []string {
	tags := make([]string, len(reg.retailers))
	for i, r := range reg.retailers {
		tags[i] = r.Tag
	}
	return tags
}
