// internal/models/product.go
package models

import (
	"errors"
	"regexp"
	"strings"
)

// ProductQuery is the immutable input to a single price resolution.
type ProductQuery struct {
	Name    string `json:"name"`
	Unit    string `json:"unit,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases, strips special characters and collapses
// whitespace. This form is the cache key across every tier.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlphanumeric.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NameKey returns the normalized form with spaces replaced, usable as a
// document id.
func NameKey(name string) string {
	return strings.ReplaceAll(NormalizeName(name), " ", "-")
}

// Normalized returns the query's cache-key form.
func (q ProductQuery) Normalized() string {
	return NormalizeName(q.Name)
}

// Product is a resolved retail listing. Currency is fixed at USD.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand,omitempty"`
	Price    float64 `json:"price"`
	URL      string  `json:"url"`
	ImageURL string  `json:"imageUrl,omitempty"`
	Retailer string  `json:"retailer"`
}

var ErrInvalidProduct = errors.New("invalid product")

// Validate enforces the Product invariant: positive price, non-empty
// identifier and name. Anything failing this is discarded, never surfaced.
func (p Product) Validate() error {
	if p.ID == "" || p.Name == "" || p.Price <= 0 {
		return ErrInvalidProduct
	}
	return nil
}
