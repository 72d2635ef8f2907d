// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pricing-workers/internal/common/aws"
	"pricing-workers/internal/common/config"
	"pricing-workers/internal/common/database"
	"pricing-workers/internal/common/llm"
	"pricing-workers/internal/common/logger"
	"pricing-workers/internal/pricing/breaker"
	"pricing-workers/internal/pricing/jobs"
	"pricing-workers/internal/pricing/materialcache"
	"pricing-workers/internal/pricing/oracle"
	"pricing-workers/internal/pricing/resolver"
	"pricing-workers/internal/pricing/retailercache"
	"pricing-workers/internal/pricing/search"
	cp "pricing-workers/internal/workers/pricing/compare-prices"
	"pricing-workers/pkg/retailers"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (optional) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	} else {
		zapLog.Info("Elasticsearch disabled, material lookups are exact-match only")
	}

	// --- Init SNS publisher (optional) ---
	var notifier resolver.Notifier
	if cfg.Notifications.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWSRegion, cfg.Notifications.SNSTopicARN)
		if err != nil {
			zapLog.Fatal("sns client initialization failed", zap.Error(err))
		}
		notifier = snsClient
		zapLog.Info("SNS publisher initialized")
	}

	// --- Build the pricing engine ---
	registry := retailers.NewRegistry(retailerList(cfg.Pricing.Retailers))

	llmClient := llm.NewClient(cfg.Pricing.LLM)
	judge := oracle.New(&oracle.Config{
		MatchTemperature: float32(cfg.Pricing.LLM.MatchTemperature),
		AliasTemperature: float32(cfg.Pricing.LLM.AliasTemperature),
		Timeout:          config.GetDuration(cfg.Pricing.LLM.Timeout),
	}, llmClient, log)

	brk := breaker.New(time.Duration(cfg.Pricing.BreakerCooldown) * time.Minute)
	searchClient := search.NewClient(&search.Config{
		BaseURL:    cfg.Pricing.SearchAPI.BaseURL,
		APIKey:     cfg.Pricing.SearchAPI.APIKey,
		MaxResults: cfg.Pricing.SearchAPI.MaxResults,
		Timeout:    config.GetDuration(cfg.Pricing.SearchAPI.Timeout),
	}, brk, log)

	var esRaw *elasticsearch.Client
	if esClient != nil {
		esRaw = esClient.Client
	}

	materials := materialcache.New(redis.Client, esRaw, judge, log)
	products := retailercache.New(redis.Client, log)
	populator := resolver.NewPopulator(materials, judge, registry.Tags(), log)
	engine := resolver.New(materials, products, searchClient, judge, registry,
		populator, cfg.Pricing.ConfidenceThreshold, log)

	jobStore := jobs.NewRepository(pg.DB, log)
	orchestrator := resolver.NewOrchestrator(engine, jobStore, notifier, cfg.Pricing.DefaultZIP, log)

	// --- Register Workers ---
	if wcfg := config.GetWorkerConfig(cfg, cp.TaskType); wcfg.Enabled {
		handler := cp.NewHandler(
			&cp.Config{
				Enabled:       wcfg.Enabled,
				MaxJobsActive: wcfg.MaxJobsActive,
				Timeout:       config.GetDuration(wcfg.Timeout),
				MaxProducts:   100,
			},
			orchestrator, log,
		)
		startWorker(zeebeClient, cp.TaskType, wcfg, handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func retailerList(configured []config.RetailerConfig) []retailers.Retailer {
	out := make([]retailers.Retailer, len(configured))
	for i, rc := range configured {
		out[i] = retailers.Retailer{
			Tag:             rc.Tag,
			DisplayName:     rc.DisplayName,
			MerchantPattern: rc.MerchantPattern,
		}
	}
	return out
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
