package di

import (
	"fmt"
	"time"

	"CostPull/internal/domain/repository"
	"CostPull/internal/handler/api"
	"CostPull/internal/providers"
	internalrepo "CostPull/internal/repository"
	"CostPull/internal/services/advisor"
	"CostPull/internal/services/anomaly"
	"CostPull/internal/services/forecast"
	"CostPull/internal/services/quality"
	"CostPull/internal/usecase"
	"CostPull/pkg/cache"
	pkgch "CostPull/pkg/clickhouse"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
	pkgkafka "CostPull/pkg/kafka"
	applogger "CostPull/pkg/logger"
	"CostPull/pkg/metrics"
	"CostPull/pkg/queue"
	"CostPull/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Log.Pretty {
		format = "console"
	}
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: format,
		Output: "stdout",
	})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCostStore creates the time-partitioned cost record store.
func ProvideCostStore(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) repository.CostStore {
	store := internalrepo.NewCHCostStore(chClient, cfg.ClickHouse.Database)
	store.SetLogger(log)
	return store
}

// ProvideRunStore creates the collection-run and quality log store.
func ProvideRunStore(chClient *pkgch.Client, cfg *config.Config) repository.RunStore {
	return internalrepo.NewCHRunStore(chClient, cfg.ClickHouse.Database)
}

// ProvideAnomalyStore creates the anomaly log store.
func ProvideAnomalyStore(chClient *pkgch.Client, cfg *config.Config) repository.AnomalyStore {
	return internalrepo.NewCHAnomalyStore(chClient, cfg.ClickHouse.Database)
}

// ProvideEventPublisher creates the Kafka event publisher; a noop publisher
// stands in when Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopEventPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideRedisCache connects to Redis when enabled. Returns nil when the
// deployment runs memory-only.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	return cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService layers an in-memory LRU in front of Redis when Redis
// is available, otherwise serves memory-only.
func ProvideCacheService(redisCache *cache.RedisCache) cache.Service {
	if redisCache == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(redisCache)
}

// ProvideRetrainQueue builds the Redis-backed retrain job queue. Without
// Redis, training falls back to in-process goroutines and this is nil.
func ProvideRetrainQueue(cfg *config.Config, redisCache *cache.RedisCache, log *applogger.Logger) *queue.RedisQueue {
	if redisCache == nil {
		return nil
	}
	return queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Forecast.QueueWorkers,
		QueueSize:  256,
		RetryLimit: 2,
		RetryDelay: 30 * time.Second,
	}, redisCache.Client(), queue.WithKeyPrefix("costpull:retrain"))
}

// ProvideRetryPolicy builds the shared adapter retry policy.
func ProvideRetryPolicy(cfg *config.Config) *providers.RetryPolicy {
	return providers.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BackoffBase, cfg.Retry.JitterFraction)
}

// ProvideRegistry builds the adapter registry from config.
func ProvideRegistry(cfg *config.Config, retry *providers.RetryPolicy) (*providers.Registry, error) {
	return providers.NewRegistry(cfg, retry)
}

// ProvideScorer creates the quality scorer.
func ProvideScorer(cfg *config.Config, runs repository.RunStore, m repository.Metrics, log *applogger.Logger) *quality.Scorer {
	scorer := quality.NewScorer(runs, m, cfg.Quality.ExclusionThreshold, cfg.Quality.RollingRuns)
	scorer.SetLogger(log)
	return scorer
}

// ProvideEngine creates the forecasting engine, wired to the retrain queue
// when one exists.
func ProvideEngine(cfg *config.Config, costs repository.CostStore, scorer *quality.Scorer, retrainQueue *queue.RedisQueue, log *applogger.Logger) *forecast.Engine {
	engine := forecast.NewEngine(costs, scorer, cfg.Forecast.RetrainInterval, cfg.Forecast.DriftFactor)
	engine.SetLogger(log)
	if retrainQueue != nil {
		retrainQueue.RegisterJob(forecast.NewRetrainJob(engine))
		engine.SetQueue(retrainQueue)
	}
	return engine
}

// ProvideDetector creates the anomaly detector.
func ProvideDetector(cfg *config.Config, anomalies repository.AnomalyStore, m repository.Metrics, log *applogger.Logger) *anomaly.Detector {
	detector := anomaly.NewDetector(anomalies, m, cfg.Anomaly.SigmaThreshold, cfg.Anomaly.HighSigma, cfg.Anomaly.MultivariateMinN)
	detector.SetLogger(log)
	return detector
}

// ProvideSynthesizer creates the recommendation synthesizer.
func ProvideSynthesizer(costs repository.CostStore, anomalies repository.AnomalyStore, engine *forecast.Engine, registry *providers.Registry, log *applogger.Logger) *advisor.Synthesizer {
	synthesizer := advisor.NewSynthesizer(costs, anomalies, engine, registry)
	synthesizer.SetLogger(log)
	return synthesizer
}

// ProvideQueryService creates the cached read boundary.
func ProvideQueryService(
	cfg *config.Config,
	cacheSvc cache.Service,
	registry *providers.Registry,
	costs repository.CostStore,
	runs repository.RunStore,
	anomalies repository.AnomalyStore,
	engine *forecast.Engine,
	scorer *quality.Scorer,
	synthesizer *advisor.Synthesizer,
	log *applogger.Logger,
) *usecase.QueryService {
	queries := usecase.NewQueryService(cfg, cacheSvc, registry, costs, runs, anomalies, engine, scorer, synthesizer)
	queries.SetLogger(log)
	return queries
}

// ProvideScheduler creates the collection scheduler.
func ProvideScheduler(
	cfg *config.Config,
	registry *providers.Registry,
	costs repository.CostStore,
	runs repository.RunStore,
	scorer *quality.Scorer,
	detector *anomaly.Detector,
	events repository.EventPublisher,
	m repository.Metrics,
	queries *usecase.QueryService,
	log *applogger.Logger,
) *usecase.Scheduler {
	scheduler := usecase.NewScheduler(cfg, registry, usecase.NewNormalizer(), costs, runs, scorer, detector, events, m, queries)
	scheduler.SetLogger(log)
	return scheduler
}

// ProvideHandler creates the Echo query-boundary handler.
func ProvideHandler(log *applogger.Logger, queries *usecase.QueryService) xhttp.Handler {
	return api.NewCostsEchoHandler(log, queries)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	chClient *pkgch.Client,
	costs repository.CostStore,
	runs repository.RunStore,
	anomalies repository.AnomalyStore,
	events repository.EventPublisher,
	retrainQueue *queue.RedisQueue,
	engine *forecast.Engine,
	scheduler *usecase.Scheduler,
	handler xhttp.Handler,
) *server.App {
	return server.NewApp(cfg, log, chClient, costs, runs, anomalies, events, retrainQueue, engine, scheduler, handler)
}
