package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CostPull/internal/domain/models"
	"CostPull/internal/providers"
	"CostPull/internal/services/advisor"
	"CostPull/internal/services/forecast"
	"CostPull/internal/services/quality"
	"CostPull/pkg/cache"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
)

// queryCostStore extends the in-memory store with canned summary rows and a
// call counter so cache behavior is observable.
type queryCostStore struct {
	*memCostStore
	rows         []models.CostSummaryRow
	summaryCalls int
}

func (q *queryCostStore) Summary(ctx context.Context, provs []string, start, end time.Time, groupBy []string, gran models.Granularity) ([]models.CostSummaryRow, error) {
	q.summaryCalls++
	return q.rows, nil
}

func newQueryHarness(t *testing.T, ttl time.Duration) (*QueryService, *queryCostStore) {
	t.Helper()
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"aws": {Enabled: true, CacheTTL: ttl},
	}}

	costs := &queryCostStore{
		memCostStore: newMemCostStore(),
		rows: []models.CostSummaryRow{
			{Provider: "aws", Service: "ec2", Total: 120, Currency: "USD", Records: 4},
			{Provider: "aws", Service: "s3", Total: 30, Currency: "USD", Records: 2},
		},
	}
	runs := &memRunStore{}
	anomalies := &memAnomalyStore{}
	metrics := &countingMetrics{}
	scorer := quality.NewScorer(runs, metrics, 0.5, 3)
	engine := forecast.NewEngine(costs, scorer, 24*time.Hour, 1.5)
	synthesizer := advisor.NewSynthesizer(costs, anomalies, engine, nil)
	registry := providers.NewStaticRegistry(&fakeAdapter{name: "aws"})

	return NewQueryService(cfg, cache.NewMemoryCache(), registry, costs, runs, anomalies, engine, scorer, synthesizer), costs
}

func summaryRequest() models.CostSummaryRequest {
	return models.CostSummaryRequest{
		Providers:   "aws",
		Start:       "2026-08-01",
		End:         "2026-08-28",
		GroupBy:     "service",
		Granularity: "daily",
	}
}

func TestQueryService_SummaryCachedUntilTTL(t *testing.T) {
	s, costs := newQueryHarness(t, 50*time.Millisecond)
	ctx := context.Background()

	first, err := s.GetCostSummary(ctx, summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessLive, first.Freshness)
	assert.Equal(t, 150.0, first.Total)
	assert.Equal(t, 1, costs.summaryCalls)

	second, err := s.GetCostSummary(ctx, summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessCached, second.Freshness)
	assert.Equal(t, 1, costs.summaryCalls, "a cache hit must not touch storage")

	time.Sleep(60 * time.Millisecond)

	third, err := s.GetCostSummary(ctx, summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessLive, third.Freshness, "expired entries must never be served")
	assert.Equal(t, 2, costs.summaryCalls)
}

func TestQueryService_InvalidateProviderDropsCachedAnswer(t *testing.T) {
	s, costs := newQueryHarness(t, time.Hour)
	ctx := context.Background()

	_, err := s.GetCostSummary(ctx, summaryRequest())
	require.NoError(t, err)
	require.NoError(t, s.InvalidateProvider(ctx, "aws"))

	after, err := s.GetCostSummary(ctx, summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, models.FreshnessLive, after.Freshness)
	assert.Equal(t, 2, costs.summaryCalls)
}

func TestQueryService_RejectsBadRequests(t *testing.T) {
	s, _ := newQueryHarness(t, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.CostSummaryRequest)
	}{
		{"unknown provider", func(r *models.CostSummaryRequest) { r.Providers = "oracle" }},
		{"bad start date", func(r *models.CostSummaryRequest) { r.Start = "not-a-date" }},
		{"end before start", func(r *models.CostSummaryRequest) { r.Start, r.End = r.End, r.Start }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := summaryRequest()
			tt.mutate(&req)
			_, err := s.GetCostSummary(ctx, req)
			require.Error(t, err)
			var appErr *xhttp.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "ERR_BAD_REQUEST", appErr.Code)
		})
	}
}

func TestQueryService_ForecastHorizonInDays(t *testing.T) {
	s, _ := newQueryHarness(t, time.Hour)

	pred, err := s.GetForecast(context.Background(), models.ForecastRequest{
		Provider:     "aws",
		Service:      "ec2",
		HorizonHours: 168,
	})
	require.NoError(t, err)
	assert.Len(t, pred.Points, 7)
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
}

func TestQueryService_AnomaliesSortedNewestFirst(t *testing.T) {
	s, _ := newQueryHarness(t, time.Hour)
	ctx := context.Background()

	store := s.anomalies.(*memAnomalyStore)
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, models.Anomaly{
			ID:        string(rune('a' + i)),
			Provider:  "aws",
			Service:   "ec2",
			Timestamp: base.AddDate(0, 0, -i),
			Severity:  models.SeverityHigh,
			Status:    models.AnomalyOpen,
		}))
	}

	out, err := s.GetAnomalies(ctx, models.AnomaliesRequest{Provider: "aws", DaysBack: 7})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i].Timestamp.Before(out[i-1].Timestamp), "anomalies must sort newest first")
	}
}

func TestQueryService_HealthReportsCredentialState(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"aws": {Enabled: true},
		"gcp": {Enabled: true},
	}}
	costs := &queryCostStore{memCostStore: newMemCostStore()}
	runs := &memRunStore{}
	anomalies := &memAnomalyStore{}
	scorer := quality.NewScorer(runs, &countingMetrics{}, 0.5, 3)
	engine := forecast.NewEngine(costs, scorer, 24*time.Hour, 1.5)
	synthesizer := advisor.NewSynthesizer(costs, anomalies, engine, nil)
	registry := providers.NewStaticRegistry(&fakeAdapter{name: "aws"})
	s := NewQueryService(cfg, cache.NewMemoryCache(), registry, costs, runs, anomalies, engine, scorer, synthesizer)

	health, err := s.GetPipelineHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, health.Providers, 2)

	byName := make(map[string]models.ProviderHealth, len(health.Providers))
	for _, ph := range health.Providers {
		byName[ph.Provider] = ph
	}
	require.NotNil(t, byName["aws"].CredentialsOK, "registered adapters must be credential-checked")
	assert.True(t, *byName["aws"].CredentialsOK)
	assert.Nil(t, byName["gcp"].CredentialsOK, "no adapter means no credential verdict")
	assert.True(t, health.StorageOK)
	assert.True(t, health.CacheOK)
}
