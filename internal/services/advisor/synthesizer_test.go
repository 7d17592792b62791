package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/internal/providers"
)

// fakeCostStore serves one service whose history is 30 days at 100/day with a
// single 500 spike.
type fakeCostStore struct {
	services []string
	history  []models.DailyPoint
}

func (f *fakeCostStore) Init(ctx context.Context) error { return nil }
func (f *fakeCostStore) UpsertBatch(ctx context.Context, records []models.CostRecord) error {
	return nil
}
func (f *fakeCostStore) Summary(ctx context.Context, provs []string, start, end time.Time, groupBy []string, gran models.Granularity) ([]models.CostSummaryRow, error) {
	return nil, nil
}
func (f *fakeCostStore) DailyHistory(ctx context.Context, provider, service string, start, end time.Time) ([]models.DailyPoint, error) {
	return f.history, nil
}
func (f *fakeCostStore) Services(ctx context.Context, provider string, since time.Time) ([]string, error) {
	return f.services, nil
}
func (f *fakeCostStore) SweepRetention(ctx context.Context, horizon time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeCostStore) Health(ctx context.Context) error { return nil }
func (f *fakeCostStore) Close() error                     { return nil }

type fakeAnomalyStore struct {
	open []models.Anomaly
}

func (f *fakeAnomalyStore) Init(ctx context.Context) error                     { return nil }
func (f *fakeAnomalyStore) Insert(ctx context.Context, a models.Anomaly) error { return nil }
func (f *fakeAnomalyStore) Open(ctx context.Context, provider string) ([]models.Anomaly, error) {
	return f.open, nil
}
func (f *fakeAnomalyStore) Query(ctx context.Context, provider, severity string, since time.Time) ([]models.Anomaly, error) {
	return f.open, nil
}
func (f *fakeAnomalyStore) Close() error { return nil }

// fixedForecaster answers every key with a flat forecast at the given level.
type fixedForecaster struct {
	daily float64
}

func (f *fixedForecaster) Predict(ctx context.Context, provider, service string, horizonDays int) models.Prediction {
	points := make([]models.PredictionPoint, 0, horizonDays)
	day := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 1; i <= horizonDays; i++ {
		points = append(points, models.PredictionPoint{
			Timestamp: day.AddDate(0, 0, i),
			Point:     f.daily,
			Lower:     f.daily * 0.8,
			Upper:     f.daily * 1.2,
		})
	}
	return models.Prediction{Provider: provider, Service: service, Tier: models.TierSeasonal, Points: points, Confidence: 0.9}
}

type fakeAdapter struct {
	name string
	recs []models.ProviderRecommendation
	err  error
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) FetchCostData(ctx context.Context, window models.Window) ([]models.RawUsage, error) {
	return nil, nil
}
func (f *fakeAdapter) ListRecommendations(ctx context.Context) ([]models.ProviderRecommendation, error) {
	return f.recs, f.err
}
func (f *fakeAdapter) ValidateCredentials(ctx context.Context) (bool, error) { return true, nil }

func spikedHistory(days int, base, spike float64) []models.DailyPoint {
	points := make([]models.DailyPoint, 0, days)
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -days)
	for i := 0; i < days; i++ {
		cost := base
		if i == days-2 {
			cost = spike
		}
		points = append(points, models.DailyPoint{Date: start.AddDate(0, 0, i), Cost: cost, Quantity: cost * 2})
	}
	return points
}

func TestSynthesizer_HighSpendWithOpenAnomaly(t *testing.T) {
	history := spikedHistory(30, 100, 500)
	spikeDay := history[len(history)-2].Date
	anomaly := models.Anomaly{
		ID:        "anom-1",
		Timestamp: spikeDay,
		Provider:  "aws",
		Service:   "ec2",
		Actual:    500,
		Expected:  100,
		Severity:  models.SeverityHigh,
		Status:    models.AnomalyOpen,
	}

	s := NewSynthesizer(
		&fakeCostStore{services: []string{"ec2"}, history: history},
		&fakeAnomalyStore{open: []models.Anomaly{anomaly}},
		&fixedForecaster{daily: 110}, // near the observed average, no budget alarm
		nil,
	)

	recs, err := s.Synthesize(context.Background(), []string{"aws"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	byKind := make(map[models.RecommendationKind]models.Recommendation)
	for _, r := range recs {
		byKind[r.Kind] = r
	}

	rightsizing, ok := byKind[models.RecommendationRightsizing]
	if !ok {
		t.Fatal("sustained spend over the threshold must yield a rightsizing advisory")
	}
	if rightsizing.AnomalyID != "anom-1" {
		t.Errorf("rightsizing.AnomalyID = %q, want the open anomaly cited", rightsizing.AnomalyID)
	}
	if rightsizing.SavingsHighMonth <= rightsizing.SavingsLowMonth {
		t.Errorf("savings band inverted: [%v, %v]", rightsizing.SavingsLowMonth, rightsizing.SavingsHighMonth)
	}

	investigate, ok := byKind[models.RecommendationInvestigate]
	if !ok {
		t.Fatal("a non-low open anomaly must yield an investigate advisory")
	}
	if investigate.AnomalyID != "anom-1" {
		t.Errorf("investigate.AnomalyID = %q, want %q", investigate.AnomalyID, "anom-1")
	}
	if investigate.SavingsHighMonth != 400 {
		t.Errorf("investigate.SavingsHighMonth = %v, want the 400 excess", investigate.SavingsHighMonth)
	}

	if _, ok := byKind[models.RecommendationBudgetReview]; ok {
		t.Error("flat forecast must not trigger a budget review")
	}

	for _, r := range recs {
		if r.EstimateBasis != models.EstimateBasisAdvisory {
			t.Errorf("rec %s EstimateBasis = %q, want %q", r.Kind, r.EstimateBasis, models.EstimateBasisAdvisory)
		}
	}
}

func TestSynthesizer_RisingForecastTriggersBudgetReview(t *testing.T) {
	s := NewSynthesizer(
		&fakeCostStore{services: []string{"s3"}, history: spikedHistory(30, 20, 20)},
		&fakeAnomalyStore{},
		&fixedForecaster{daily: 40}, // double the observed average
		nil,
	)
	recs, err := s.Synthesize(context.Background(), []string{"aws"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Kind != models.RecommendationBudgetReview {
		t.Fatalf("recs = %+v, want exactly one budget review", recs)
	}
	if !strings.Contains(recs[0].Summary, "s3") {
		t.Errorf("Summary = %q, want the service named", recs[0].Summary)
	}
}

func TestSynthesizer_RankedBySavings(t *testing.T) {
	s := NewSynthesizer(
		&fakeCostStore{services: []string{"ec2"}, history: spikedHistory(30, 100, 100)},
		&fakeAnomalyStore{},
		&fixedForecaster{daily: 200},
		nil,
	)
	recs, err := s.Synthesize(context.Background(), []string{"aws"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(recs) < 2 {
		t.Fatalf("len(recs) = %d, want at least rightsizing and budget review", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].SavingsHighMonth > recs[i-1].SavingsHighMonth {
			t.Errorf("recs not sorted by SavingsHighMonth at %d: %v > %v",
				i, recs[i].SavingsHighMonth, recs[i-1].SavingsHighMonth)
		}
	}
}

func TestSynthesizer_ProviderNativePassthrough(t *testing.T) {
	registry := providers.NewStaticRegistry(&fakeAdapter{
		name: "aws",
		recs: []models.ProviderRecommendation{
			{Provider: "aws", ResourceID: "i-123", Description: "use a savings plan", Savings: 80},
		},
	})
	s := NewSynthesizer(
		&fakeCostStore{},
		&fakeAnomalyStore{},
		&fixedForecaster{daily: 0},
		registry,
	)
	recs, err := s.Synthesize(context.Background(), []string{"aws"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Kind != models.RecommendationProvider {
		t.Errorf("Kind = %q, want %q", r.Kind, models.RecommendationProvider)
	}
	if r.SavingsHighMonth != 80 || r.SavingsLowMonth != 40 {
		t.Errorf("savings band = [%v, %v], want [40, 80]", r.SavingsLowMonth, r.SavingsHighMonth)
	}
}

func TestSynthesizer_ProviderFailureDoesNotBlock(t *testing.T) {
	registry := providers.NewStaticRegistry(&fakeAdapter{name: "aws", err: errors.New("api down")})
	s := NewSynthesizer(
		&fakeCostStore{services: []string{"ec2"}, history: spikedHistory(30, 100, 100)},
		&fakeAnomalyStore{},
		&fixedForecaster{daily: 100},
		registry,
	)
	recs, err := s.Synthesize(context.Background(), []string{"aws"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v, want nil even when the native listing fails", err)
	}
	if len(recs) != 1 || recs[0].Kind != models.RecommendationRightsizing {
		t.Errorf("recs = %+v, want the synthesized rightsizing advisory alone", recs)
	}
}
