package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CostPull/internal/domain/models"
	"CostPull/internal/providers"
	"CostPull/internal/services/anomaly"
	"CostPull/internal/services/quality"
	"CostPull/pkg/config"
)

type fakeAdapter struct {
	name  string
	usage []models.RawUsage
	err   error
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) FetchCostData(ctx context.Context, window models.Window) ([]models.RawUsage, error) {
	return f.usage, f.err
}
func (f *fakeAdapter) ListRecommendations(ctx context.Context) ([]models.ProviderRecommendation, error) {
	return nil, nil
}
func (f *fakeAdapter) ValidateCredentials(ctx context.Context) (bool, error) { return true, nil }

// memCostStore keeps records keyed by natural key, like the real store's
// replacing merge tree.
type memCostStore struct {
	mu      sync.Mutex
	records map[string]models.CostRecord
	history []models.DailyPoint
}

func newMemCostStore() *memCostStore {
	return &memCostStore{records: make(map[string]models.CostRecord)}
}

func (m *memCostStore) Init(ctx context.Context) error { return nil }
func (m *memCostStore) UpsertBatch(ctx context.Context, records []models.CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.NaturalKey()] = r
	}
	return nil
}
func (m *memCostStore) Summary(ctx context.Context, provs []string, start, end time.Time, groupBy []string, gran models.Granularity) ([]models.CostSummaryRow, error) {
	return nil, nil
}
func (m *memCostStore) DailyHistory(ctx context.Context, provider, service string, start, end time.Time) ([]models.DailyPoint, error) {
	return m.history, nil
}
func (m *memCostStore) Services(ctx context.Context, provider string, since time.Time) ([]string, error) {
	return nil, nil
}
func (m *memCostStore) SweepRetention(ctx context.Context, horizon time.Duration) (int, error) {
	return 0, nil
}
func (m *memCostStore) Health(ctx context.Context) error { return nil }
func (m *memCostStore) Close() error                     { return nil }

func (m *memCostStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memRunStore struct {
	mu     sync.Mutex
	runs   []models.CollectionRun
	scores []models.QualityScore
}

func (m *memRunStore) Init(ctx context.Context) error { return nil }
func (m *memRunStore) RecordRun(ctx context.Context, run models.CollectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}
func (m *memRunStore) RecordQuality(ctx context.Context, score models.QualityScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, score)
	return nil
}
func (m *memRunStore) LastRuns(ctx context.Context, provider string, n int) ([]models.CollectionRun, error) {
	return nil, nil
}
func (m *memRunStore) RecentQuality(ctx context.Context, provider string, n int) ([]models.QualityScore, error) {
	return nil, nil
}
func (m *memRunStore) Close() error { return nil }

func (m *memRunStore) byProvider() map[string]models.CollectionRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.CollectionRun)
	for _, r := range m.runs {
		out[r.Provider] = r
	}
	return out
}

type memAnomalyStore struct {
	mu        sync.Mutex
	anomalies []models.Anomaly
}

func (m *memAnomalyStore) Init(ctx context.Context) error { return nil }
func (m *memAnomalyStore) Insert(ctx context.Context, a models.Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, a)
	return nil
}
func (m *memAnomalyStore) Open(ctx context.Context, provider string) ([]models.Anomaly, error) {
	return nil, nil
}
func (m *memAnomalyStore) Query(ctx context.Context, provider, severity string, since time.Time) ([]models.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Anomaly
	for _, a := range m.anomalies {
		if a.Provider == provider && a.Timestamp.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *memAnomalyStore) Close() error { return nil }

type capturedEvents struct {
	mu        sync.Mutex
	batches   []string
	anomalies []models.Anomaly
}

func (c *capturedEvents) PublishBatchStored(ctx context.Context, provider string, window models.Window, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, provider)
	return nil
}
func (c *capturedEvents) PublishAnomaly(ctx context.Context, a models.Anomaly) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anomalies = append(c.anomalies, a)
	return nil
}
func (c *capturedEvents) Close() error { return nil }

type countingMetrics struct {
	mu     sync.Mutex
	errors []string
}

func (c *countingMetrics) RecordFetched(provider string, count int) {}
func (c *countingMetrics) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, kind)
}
func (c *countingMetrics) RecordRunDuration(provider string, seconds float64) {}
func (c *countingMetrics) RecordQuality(provider string, overall float64)     {}
func (c *countingMetrics) RecordOpenAnomalies(provider string, count int)     {}

type capturedInvalidations struct {
	mu        sync.Mutex
	providers []string
}

func (c *capturedInvalidations) InvalidateProvider(ctx context.Context, provider string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, provider)
	return nil
}

type schedulerHarness struct {
	scheduler     *Scheduler
	costs         *memCostStore
	runs          *memRunStore
	events        *capturedEvents
	metrics       *countingMetrics
	invalidations *capturedInvalidations
}

func newSchedulerHarness(t *testing.T, adapters ...providers.Adapter) *schedulerHarness {
	t.Helper()
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{}}
	cfg.Collection.Cadence = time.Hour
	cfg.Collection.TaskTimeout = time.Minute
	cfg.Collection.Window = 72 * time.Hour

	costs := newMemCostStore()
	runs := &memRunStore{}
	events := &capturedEvents{}
	metrics := &countingMetrics{}
	invalidations := &capturedInvalidations{}
	scorer := quality.NewScorer(runs, metrics, 0.5, 3)
	detector := anomaly.NewDetector(&memAnomalyStore{}, metrics, 2.5, 3, 50)

	s := NewScheduler(cfg, providers.NewStaticRegistry(adapters...), NewNormalizer(),
		costs, runs, scorer, detector, events, metrics, invalidations)
	return &schedulerHarness{
		scheduler:     s,
		costs:         costs,
		runs:          runs,
		events:        events,
		metrics:       metrics,
		invalidations: invalidations,
	}
}

func today() time.Time { return time.Now().UTC().Truncate(24 * time.Hour) }

func TestScheduler_FailureIsolatedPerProvider(t *testing.T) {
	h := newSchedulerHarness(t,
		&fakeAdapter{name: "aws", err: &providers.TransientError{Provider: "aws", Err: errors.New("503")}},
		&fakeAdapter{name: "gcp", usage: []models.RawUsage{
			{Service: "bigquery", ResourceID: "ds-1", Cost: 12, UsageDate: today()},
		}},
	)

	h.scheduler.runCycle()
	h.scheduler.wg.Wait()

	byProvider := h.runs.byProvider()
	require.Len(t, byProvider, 2)
	assert.Equal(t, models.RunStatusFailed, byProvider["aws"].Status)
	assert.NotEmpty(t, byProvider["aws"].Error)
	assert.Equal(t, models.RunStatusSuccess, byProvider["gcp"].Status)
	assert.Equal(t, 1, byProvider["gcp"].FetchedCount)

	assert.Equal(t, 1, h.costs.count(), "the failing provider must not block the healthy one")
	assert.Equal(t, []string{"gcp"}, h.invalidations.providers)
	assert.Equal(t, []string{"gcp"}, h.events.batches)
	assert.Contains(t, h.metrics.errors, "transient")
}

func TestScheduler_RecollectionIsIdempotent(t *testing.T) {
	usage := []models.RawUsage{
		{Service: "ec2", ResourceID: "i-1", Cost: 10, UsageDate: today()},
		{Service: "ec2", ResourceID: "i-2", Cost: 20, UsageDate: today()},
	}
	h := newSchedulerHarness(t, &fakeAdapter{name: "aws", usage: usage})

	h.scheduler.runCycle()
	h.scheduler.wg.Wait()
	require.Equal(t, 2, h.costs.count())

	// The next cycle re-reads the same window; the record set must not grow.
	h.scheduler.runCycle()
	h.scheduler.wg.Wait()
	assert.Equal(t, 2, h.costs.count())
}

func TestScheduler_SkipsWhenFetchInFlight(t *testing.T) {
	h := newSchedulerHarness(t, &fakeAdapter{name: "aws"})

	h.scheduler.inflight["aws"].Lock()
	defer h.scheduler.inflight["aws"].Unlock()

	adapter, _ := h.scheduler.registry.Get("aws")
	window := models.Window{Start: today().Add(-72 * time.Hour), End: today()}
	h.scheduler.collect("aws", adapter, window)

	byProvider := h.runs.byProvider()
	require.Contains(t, byProvider, "aws")
	assert.Equal(t, models.RunStatusSkipped, byProvider["aws"].Status)
	assert.Equal(t, 0, h.costs.count())
}

func TestScheduler_PublishesDetectedAnomalies(t *testing.T) {
	h := newSchedulerHarness(t, &fakeAdapter{name: "aws", usage: []models.RawUsage{
		{Service: "ec2", ResourceID: "i-1", Cost: 500, UsageDate: today()},
	}})

	// 30 days of mild wobble around 100 so the spike clears the sigma bar.
	history := make([]models.DailyPoint, 0, 30)
	for i := 0; i < 30; i++ {
		cost := 100 + float64(i%5) - 2
		history = append(history, models.DailyPoint{Date: today().AddDate(0, 0, i-30), Cost: cost, Quantity: cost * 2})
	}
	h.costs.history = history

	h.scheduler.runCycle()
	h.scheduler.wg.Wait()

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.Len(t, h.events.anomalies, 1)
	assert.Equal(t, "aws", h.events.anomalies[0].Provider)
	assert.Equal(t, "ec2", h.events.anomalies[0].Service)
	assert.Equal(t, 500.0, h.events.anomalies[0].Actual)
}
