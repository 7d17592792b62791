package forecast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CostPull/internal/domain/models"
)

// fakeCostStore serves a fixed daily series regardless of the requested range.
type fakeCostStore struct {
	history []models.DailyPoint
}

func (f *fakeCostStore) Init(ctx context.Context) error { return nil }
func (f *fakeCostStore) UpsertBatch(ctx context.Context, records []models.CostRecord) error {
	return nil
}
func (f *fakeCostStore) Summary(ctx context.Context, providers []string, start, end time.Time, groupBy []string, gran models.Granularity) ([]models.CostSummaryRow, error) {
	return nil, nil
}
func (f *fakeCostStore) DailyHistory(ctx context.Context, provider, service string, start, end time.Time) ([]models.DailyPoint, error) {
	return f.history, nil
}
func (f *fakeCostStore) Services(ctx context.Context, provider string, since time.Time) ([]string, error) {
	return nil, nil
}
func (f *fakeCostStore) SweepRetention(ctx context.Context, horizon time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeCostStore) Health(ctx context.Context) error { return nil }
func (f *fakeCostStore) Close() error                     { return nil }

type fakeGate struct{ excluded bool }

func (f *fakeGate) Excluded(ctx context.Context, provider string) (bool, error) {
	return f.excluded, nil
}

// fakeQueue records published retrain requests instead of running them.
type fakeQueue struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgType)
	return nil
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// weeklySeries builds n days ending yesterday: weekday spend high, weekend low.
func weeklySeries(n int, weekday, weekend float64) []models.DailyPoint {
	points := make([]models.DailyPoint, 0, n)
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, i)
		cost := weekday
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			cost = weekend
		}
		points = append(points, models.DailyPoint{Date: date, Cost: cost, Quantity: cost * 2})
	}
	return points
}

func TestEngine_PredictShape(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(60, 100, 50)}
	engine := NewEngine(store, &fakeGate{}, 24*time.Hour, 1.5)

	require.NoError(t, engine.Train(context.Background(), "aws", "ec2"))

	pred := engine.Predict(context.Background(), "aws", "ec2", 7)
	require.Len(t, pred.Points, 7)
	for i, p := range pred.Points {
		assert.GreaterOrEqual(t, p.Point, 0.0, "point %d must be non-negative", i)
		assert.GreaterOrEqual(t, p.Lower, 0.0, "lower %d must be non-negative", i)
		assert.LessOrEqual(t, p.Lower, p.Point, "lower %d must not exceed point", i)
		assert.LessOrEqual(t, p.Point, p.Upper, "point %d must not exceed upper", i)
		if i > 0 {
			assert.True(t, p.Timestamp.After(pred.Points[i-1].Timestamp), "timestamps must be strictly increasing")
		}
	}
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
	assert.LessOrEqual(t, pred.Confidence, 0.99)
}

func TestEngine_TrainRichHistoryAvoidsHeuristic(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(60, 100, 50)}
	engine := NewEngine(store, &fakeGate{}, 24*time.Hour, 1.5)

	require.NoError(t, engine.Train(context.Background(), "aws", "ec2"))

	modelsMeta := engine.Models()
	require.Len(t, modelsMeta, 1)
	assert.Equal(t, models.ModelReady, modelsMeta[0].State)
	assert.NotEqual(t, models.TierHeuristic, modelsMeta[0].Tier)
	assert.Equal(t, 60, modelsMeta[0].SampleCount)
}

func TestEngine_TrainSparseHistoryDegrades(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(2, 100, 50)}
	engine := NewEngine(store, &fakeGate{}, 24*time.Hour, 1.5)

	require.NoError(t, engine.Train(context.Background(), "aws", "ec2"))

	modelsMeta := engine.Models()
	require.Len(t, modelsMeta, 1)
	assert.Equal(t, models.TierHeuristic, modelsMeta[0].Tier)
	assert.Equal(t, models.ModelDegraded, modelsMeta[0].State)
}

func TestEngine_QualityExclusionForcesHeuristic(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(60, 100, 50)}
	engine := NewEngine(store, &fakeGate{excluded: true}, 24*time.Hour, 1.5)

	require.NoError(t, engine.Train(context.Background(), "aws", "ec2"))

	modelsMeta := engine.Models()
	require.Len(t, modelsMeta, 1)
	assert.Equal(t, models.TierHeuristic, modelsMeta[0].Tier, "excluded providers must not reach the better tiers")
}

func TestEngine_PredictColdKeyNeverFails(t *testing.T) {
	store := &fakeCostStore{} // zero history
	engine := NewEngine(store, &fakeGate{}, 24*time.Hour, 1.5)
	q := &fakeQueue{}
	engine.SetQueue(q)

	pred := engine.Predict(context.Background(), "gcp", "bigquery", 3)
	require.Len(t, pred.Points, 3)
	assert.Equal(t, models.TierHeuristic, pred.Tier)
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
	assert.LessOrEqual(t, pred.Confidence, heuristicConfidenceCap)
	for _, p := range pred.Points {
		assert.Greater(t, p.Point, 0.0, "zero history answers from the global prior")
	}
	assert.Equal(t, 1, q.count(), "cold key must request a retrain")
}

func TestEngine_PredictClampsHorizon(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(10, 100, 50)}
	engine := NewEngine(store, &fakeGate{}, 24*time.Hour, 1.5)
	engine.SetQueue(&fakeQueue{})

	pred := engine.Predict(context.Background(), "aws", "ec2", 0)
	assert.Len(t, pred.Points, 1)
}

func TestEngine_SweepMarksAgedModelsStale(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(60, 100, 50)}
	engine := NewEngine(store, &fakeGate{}, time.Millisecond, 1.5)
	q := &fakeQueue{}
	engine.SetQueue(q)

	require.NoError(t, engine.Train(context.Background(), "aws", "ec2"))
	time.Sleep(5 * time.Millisecond)

	engine.Sweep(context.Background())

	modelsMeta := engine.Models()
	require.Len(t, modelsMeta, 1)
	assert.Equal(t, models.ModelStale, modelsMeta[0].State)
	assert.Equal(t, 1, q.count(), "stale model must be queued for retraining")
}

func TestRetrainJob_Handle(t *testing.T) {
	store := &fakeCostStore{history: weeklySeries(60, 100, 50)}
	engine := NewEngine(store, &fakeGate{}, 24*time.Hour, 1.5)
	job := NewRetrainJob(engine)

	assert.Equal(t, RetrainMessageType, job.Type())

	err := job.Handle(context.Background(), RetrainRequest{Provider: "aws", Service: "ec2"})
	require.NoError(t, err)
	require.Len(t, engine.Models(), 1)
	assert.Equal(t, models.ModelReady, engine.Models()[0].State)
}
