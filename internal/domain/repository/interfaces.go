package repository

import (
	"context"
	"time"

	"CostPull/internal/domain/models"
)

// CostStore persists normalized cost records, time-partitioned by month.
// Writes are idempotent on the natural key.
type CostStore interface {
	Init(ctx context.Context) error // ensure tables exist
	UpsertBatch(ctx context.Context, records []models.CostRecord) error
	Summary(ctx context.Context, providers []string, start, end time.Time, groupBy []string, gran models.Granularity) ([]models.CostSummaryRow, error)
	DailyHistory(ctx context.Context, provider, service string, start, end time.Time) ([]models.DailyPoint, error)
	Services(ctx context.Context, provider string, since time.Time) ([]string, error)
	SweepRetention(ctx context.Context, horizon time.Duration) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// RunStore persists collection runs and quality scores.
type RunStore interface {
	Init(ctx context.Context) error
	RecordRun(ctx context.Context, run models.CollectionRun) error
	RecordQuality(ctx context.Context, score models.QualityScore) error
	LastRuns(ctx context.Context, provider string, n int) ([]models.CollectionRun, error)
	RecentQuality(ctx context.Context, provider string, n int) ([]models.QualityScore, error)
	Close() error
}

// AnomalyStore persists the anomaly log.
type AnomalyStore interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, a models.Anomaly) error
	Open(ctx context.Context, provider string) ([]models.Anomaly, error)
	Query(ctx context.Context, provider, severity string, since time.Time) ([]models.Anomaly, error)
	Close() error
}

// EventPublisher emits pipeline events for downstream alerting consumers.
type EventPublisher interface {
	PublishBatchStored(ctx context.Context, provider string, window models.Window, count int) error
	PublishAnomaly(ctx context.Context, a models.Anomaly) error
	Close() error
}

// Metrics abstracts the Prometheus recorder so use cases stay testable.
type Metrics interface {
	RecordFetched(provider string, count int)
	RecordError(kind string)
	RecordRunDuration(provider string, seconds float64)
	RecordQuality(provider string, overall float64)
	RecordOpenAnomalies(provider string, count int)
}
