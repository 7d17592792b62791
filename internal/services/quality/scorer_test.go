package quality

import (
	"context"
	"math"
	"testing"
	"time"

	"CostPull/internal/domain/models"
)

type memRunStore struct {
	runs   []models.CollectionRun
	scores []models.QualityScore
}

func (m *memRunStore) Init(ctx context.Context) error { return nil }
func (m *memRunStore) RecordRun(ctx context.Context, run models.CollectionRun) error {
	m.runs = append(m.runs, run)
	return nil
}
func (m *memRunStore) RecordQuality(ctx context.Context, score models.QualityScore) error {
	m.scores = append(m.scores, score)
	return nil
}
func (m *memRunStore) LastRuns(ctx context.Context, provider string, n int) ([]models.CollectionRun, error) {
	return m.runs, nil
}
func (m *memRunStore) RecentQuality(ctx context.Context, provider string, n int) ([]models.QualityScore, error) {
	if len(m.scores) <= n {
		return m.scores, nil
	}
	return m.scores[len(m.scores)-n:], nil
}
func (m *memRunStore) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordFetched(provider string, count int)           {}
func (nopMetrics) RecordError(kind string)                            {}
func (nopMetrics) RecordRunDuration(provider string, seconds float64) {}
func (nopMetrics) RecordQuality(provider string, overall float64)     {}
func (nopMetrics) RecordOpenAnomalies(provider string, count int)     {}

var runSeq int

// run builds a CollectionRun with strictly increasing timestamps so the
// newest score is unambiguous.
func run(status models.RunStatus, fetched int) models.CollectionRun {
	runSeq++
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(runSeq) * time.Minute)
	return models.CollectionRun{
		Provider:     "aws",
		Status:       status,
		FetchedCount: fetched,
		StartedAt:    at.Add(-time.Minute),
		CompletedAt:  at,
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScorer_SuccessfulRunScoresPerfect(t *testing.T) {
	s := NewScorer(&memRunStore{}, nopMetrics{}, 0.5, 3)
	score, err := s.Score(context.Background(), run(models.RunStatusSuccess, 100), 0)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if !almostEqual(score.Freshness, 1) || !almostEqual(score.Completeness, 1) ||
		!almostEqual(score.Availability, 1) || !almostEqual(score.Overall, 1) {
		t.Errorf("score = %+v, want all components 1.0", score)
	}
}

func TestScorer_CompletenessAgainstBaseline(t *testing.T) {
	tests := []struct {
		name     string
		fetched  int
		baseline float64
		want     float64
	}{
		{"half of baseline", 50, 100, 0.5},
		{"meets baseline", 100, 100, 1},
		{"over baseline capped", 250, 100, 1},
		{"zero baseline disables penalty", 3, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(&memRunStore{}, nopMetrics{}, 0.5, 3)
			score, err := s.Score(context.Background(), run(models.RunStatusSuccess, tt.fetched), tt.baseline)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if !almostEqual(score.Completeness, tt.want) {
				t.Errorf("Completeness = %v, want %v", score.Completeness, tt.want)
			}
		})
	}
}

func TestScorer_FreshnessDecaysWithConsecutiveFailures(t *testing.T) {
	s := NewScorer(&memRunStore{}, nopMetrics{}, 0.5, 3)
	wantFreshness := []float64{0.75, 0.5625, 0.421875}
	for i, want := range wantFreshness {
		score, err := s.Score(context.Background(), run(models.RunStatusFailed, 0), 100)
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if !almostEqual(score.Freshness, want) {
			t.Errorf("failure %d: Freshness = %v, want %v", i+1, score.Freshness, want)
		}
		if score.Availability != 0 || score.Completeness != 0 {
			t.Errorf("failure %d: availability/completeness = %v/%v, want 0/0",
				i+1, score.Availability, score.Completeness)
		}
	}
	if s.ConsecutiveMisses("aws") != 3 {
		t.Errorf("ConsecutiveMisses = %d, want 3", s.ConsecutiveMisses("aws"))
	}

	if _, err := s.Score(context.Background(), run(models.RunStatusSuccess, 100), 100); err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if s.ConsecutiveMisses("aws") != 0 {
		t.Errorf("ConsecutiveMisses after success = %d, want 0", s.ConsecutiveMisses("aws"))
	}
}

func TestScorer_ExclusionAndRecovery(t *testing.T) {
	ctx := context.Background()
	s := NewScorer(&memRunStore{}, nopMetrics{}, 0.5, 3)

	excluded, err := s.Excluded(ctx, "aws")
	if err != nil || excluded {
		t.Fatalf("no runs yet: excluded=%v err=%v, want false", excluded, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Score(ctx, run(models.RunStatusFailed, 0), 100); err != nil {
			t.Fatalf("Score() error = %v", err)
		}
	}
	if excluded, _ = s.Excluded(ctx, "aws"); !excluded {
		t.Fatal("three straight failures must exclude the provider")
	}

	// A single clean run lifts the exclusion even though the rolling mean
	// still carries two of the failed scores.
	if _, err := s.Score(ctx, run(models.RunStatusSuccess, 100), 100); err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if excluded, _ = s.Excluded(ctx, "aws"); excluded {
		t.Fatal("one successful run must clear the exclusion")
	}

	// Another failure re-excludes: the window mean is still poisoned and
	// the latest run is bad again.
	if _, err := s.Score(ctx, run(models.RunStatusFailed, 0), 100); err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if excluded, _ = s.Excluded(ctx, "aws"); !excluded {
		t.Fatal("a fresh failure on a poisoned window must re-exclude")
	}
}
