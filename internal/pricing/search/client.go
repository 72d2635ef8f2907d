// internal/pricing/search/client.go
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	chttp "pricing-workers/internal/common/http"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/common/metrics"
	"pricing-workers/internal/models"
	"pricing-workers/internal/pricing/breaker"
	"pricing-workers/pkg/retailers"
)

// quotaExhaustedMarker is the substring the search API embeds in error
// bodies once the monthly quota is spent.
const quotaExhaustedMarker = "run out of searches"

type Config struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
}

// Client queries the external shopping-search API for one retailer at a
// time. The API returns a mixed-merchant result set, so every response is
// filtered against the retailer's merchant pattern client-side.
type Client struct {
	config  *Config
	http    *chttp.Client
	breaker *breaker.Breaker
	logger  logger.Logger
}

func NewClient(config *Config, brk *breaker.Breaker, log logger.Logger) *Client {
	return &Client{
		config:  config,
		http:    chttp.NewClient(config.Timeout),
		breaker: brk,
		logger:  log.WithFields(map[string]interface{}{"component": "search"}),
	}
}

// Search issues one shopping-search call scoped to query and keeps only
// valid products sold by the given retailer. Every failure mode degrades
// to an empty result set; search never aborts a comparison. The second
// return value is the raw result count before filtering.
func (c *Client) Search(ctx context.Context, query string, retailer retailers.Retailer) ([]models.Product, int) {
	if !c.breaker.IsAvailable() {
		c.logger.Warn("circuit breaker open, skipping live search", map[string]interface{}{
			"retailer": retailer.Tag,
			"query":    query,
		})
		metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "breaker_open").Inc()
		return nil, 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	searchURL, err := c.buildSearchURL(query)
	if err != nil {
		c.logger.Error("failed to build search URL", map[string]interface{}{"error": err.Error()})
		metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "error").Inc()
		return nil, 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		c.logger.Error("failed to build search request", map[string]interface{}{"error": err.Error()})
		metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "error").Inc()
		return nil, 0
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("search call failed", map[string]interface{}{
			"retailer": retailer.Tag,
			"query":    query,
			"error":    err.Error(),
		})
		metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "error").Inc()
		return nil, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if c.isQuotaExhausted(resp.StatusCode, string(body)) {
			c.logger.Error("search quota exhausted, tripping circuit breaker", map[string]interface{}{
				"status": resp.StatusCode,
			})
			c.breaker.TripQuotaExhausted()
			metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "quota_exhausted").Inc()
		} else {
			c.logger.Warn("search API returned non-success status", map[string]interface{}{
				"retailer": retailer.Tag,
				"status":   resp.StatusCode,
			})
			metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "error").Inc()
		}
		return nil, 0
	}

	var apiResponse struct {
		ShoppingResults []rawResult `json:"shopping_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		c.logger.Warn("failed to decode search response", map[string]interface{}{
			"retailer": retailer.Tag,
			"error":    err.Error(),
		})
		metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "error").Inc()
		return nil, 0
	}

	products := c.filterAndNormalize(apiResponse.ShoppingResults, retailer)

	c.logger.Info("live search completed", map[string]interface{}{
		"retailer": retailer.Tag,
		"query":    query,
		"rawCount": len(apiResponse.ShoppingResults),
		"kept":     len(products),
	})
	metrics.LiveSearchesTotal.WithLabelValues(retailer.Tag, "ok").Inc()

	return products, len(apiResponse.ShoppingResults)
}

func (c *Client) buildSearchURL(query string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL + "/search.json")
	if err != nil {
		return "", fmt.Errorf("parse search base URL: %w", err)
	}
	params := url.Values{}
	params.Add("engine", "google_shopping")
	params.Add("q", query)
	params.Add("api_key", c.config.APIKey)
	params.Add("num", fmt.Sprintf("%d", c.config.MaxResults))
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func (c *Client) isQuotaExhausted(status int, body string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(body), quotaExhaustedMarker)
}

func (c *Client) filterAndNormalize(raw []rawResult, retailer retailers.Retailer) []models.Product {
	var products []models.Product
	for _, r := range raw {
		if !retailer.MatchesMerchant(r.Source) {
			continue
		}
		product, ok := normalize(r, retailer.Tag)
		if !ok {
			// Malformed rows are dropped silently, not retried.
			continue
		}
		products = append(products, product)
	}
	return products
}
