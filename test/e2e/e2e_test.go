// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-workers/internal/common/config"
	"pricing-workers/internal/common/database"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/models"
	"pricing-workers/internal/pricing/breaker"
	"pricing-workers/internal/pricing/jobs"
	"pricing-workers/internal/pricing/materialcache"
	"pricing-workers/internal/pricing/oracle"
	"pricing-workers/internal/pricing/resolver"
	"pricing-workers/internal/pricing/retailercache"
	"pricing-workers/internal/pricing/search"
	"pricing-workers/pkg/retailers"
)

// These tests exercise the full resolution pipeline against real Redis
// and Postgres. The shopping-search API and the LLM are replaced by
// local stand-ins so runs are deterministic and spend no quota.
//
// Run with: E2E_TESTS=true go test ./test/e2e/...

func requireE2E(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("E2E_TESTS") != "true" {
		t.Skip("skipping e2e tests; set E2E_TESTS=true to run")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

// scriptedOracle stands in for the LLM: first candidate, high confidence.
type scriptedOracle struct{}

func (scriptedOracle) SelectBest(_ context.Context, _ string, candidates []oracle.Candidate) oracle.Selection {
	if len(candidates) == 0 {
		return oracle.Selection{Index: -1}
	}
	return oracle.Selection{Index: 0, Confidence: 0.95, Reasoning: "scripted"}
}

func (scriptedOracle) ScoreOne(context.Context, string, oracle.Candidate) oracle.Score {
	return oracle.Score{Confidence: 0.95, Reasoning: "scripted"}
}

func (scriptedOracle) GenerateAliases(_ context.Context, _, query string) oracle.AliasSet {
	return oracle.AliasSet{Aliases: []string{models.NormalizeName(query)}}
}

func newSearchStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"shopping_results":[
			{"position":1,"product_id":"hd-%s","title":"%s - Home Depot SKU","extracted_price":3.98,"link":"https://hd/p/1","source":"Home Depot"},
			{"position":2,"product_id":"lw-%s","title":"%s - Lowe's SKU","extracted_price":4.25,"link":"https://lw/p/1","source":"Lowe's"}
		]}`, q, q, q, q)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildEngine(t *testing.T, cfg *config.Config, searchURL string) (*resolver.Orchestrator, *jobs.Repository) {
	t.Helper()
	log := logger.NewTestLogger(t)

	redisClient, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	require.NoError(t, redisClient.Ping(context.Background()))
	t.Cleanup(func() { _ = redisClient.Close() })

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	require.NoError(t, pg.Ping(context.Background()))
	t.Cleanup(func() { _ = pg.Close() })

	registry := retailers.NewRegistry([]retailers.Retailer{
		{Tag: "homedepot", DisplayName: "Home Depot", MerchantPattern: "home depot"},
		{Tag: "lowes", DisplayName: "Lowe's", MerchantPattern: "lowe"},
	})

	judge := scriptedOracle{}
	brk := breaker.New(time.Hour)
	searchClient := search.NewClient(&search.Config{
		BaseURL:    searchURL,
		APIKey:     "e2e",
		MaxResults: 10,
		Timeout:    5 * time.Second,
	}, brk, log)

	materials := materialcache.New(redisClient.Client, nil, judge, log)
	products := retailercache.New(redisClient.Client, log)
	populator := resolver.NewPopulator(materials, judge, registry.Tags(), log)
	engine := resolver.New(materials, products, searchClient, judge, registry, populator, 0.8, log)

	repo := jobs.NewRepository(pg.DB, log)
	return resolver.NewOrchestrator(engine, repo, nil, "27513", log), repo
}

func TestE2E_BatchColdThenWarm(t *testing.T) {
	cfg := requireE2E(t)
	stub := newSearchStub(t)
	orchestrator, repo := buildEngine(t, cfg, stub.URL)

	ctx := context.Background()
	projectID := "e2e-" + uuid.NewString()
	names := []string{"e2e 2x4 lumber " + uuid.NewString()[:8]}

	// Cold run resolves via live search.
	jobID := uuid.NewString()
	out, err := orchestrator.Compare(ctx, projectID, jobID, names, "27513", false)
	require.NoError(t, err)
	assert.False(t, out.Cached)

	job, err := repo.Get(ctx, projectID, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.BatchStatusComplete, job.Status)
	require.Len(t, job.Results, 1)
	assert.Equal(t, models.TierLiveSearch, job.Results[0].Tier)
	require.NotNil(t, job.Results[0].BestPrice)
	assert.Equal(t, "homedepot", job.Results[0].BestPrice.Retailer)

	// Give the detached populator time to write the material record.
	time.Sleep(500 * time.Millisecond)

	// Warm run with a fresh job id must answer from the global cache.
	warmJobID := uuid.NewString()
	out, err = orchestrator.Compare(ctx, projectID, warmJobID, names, "27513", false)
	require.NoError(t, err)
	assert.False(t, out.Cached)

	warmJob, err := repo.Get(ctx, projectID, warmJobID)
	require.NoError(t, err)
	require.Len(t, warmJob.Results, 1)
	assert.Equal(t, models.TierGlobalCache, warmJob.Results[0].Tier)
}

func TestE2E_CompletedJobShortCircuits(t *testing.T) {
	cfg := requireE2E(t)
	stub := newSearchStub(t)
	orchestrator, _ := buildEngine(t, cfg, stub.URL)

	ctx := context.Background()
	projectID := "e2e-" + uuid.NewString()
	jobID := uuid.NewString()
	names := []string{"e2e deck screws " + uuid.NewString()[:8]}

	_, err := orchestrator.Compare(ctx, projectID, jobID, names, "27513", false)
	require.NoError(t, err)

	out, err := orchestrator.Compare(ctx, projectID, jobID, names, "27513", false)
	require.NoError(t, err)
	assert.True(t, out.Cached)
}

func TestE2E_JobProgressIsReadableAsJSON(t *testing.T) {
	cfg := requireE2E(t)
	stub := newSearchStub(t)
	orchestrator, repo := buildEngine(t, cfg, stub.URL)

	ctx := context.Background()
	projectID := "e2e-" + uuid.NewString()
	jobID := uuid.NewString()

	_, err := orchestrator.Compare(ctx, projectID, jobID,
		[]string{"e2e drywall " + uuid.NewString()[:8]}, "27513", false)
	require.NoError(t, err)

	job, err := repo.Get(ctx, projectID, jobID)
	require.NoError(t, err)

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"complete"`)
}
