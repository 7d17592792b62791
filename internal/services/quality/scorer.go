package quality

import (
	"context"
	"math"
	"sync"

	"CostPull/internal/domain/models"
	"CostPull/internal/domain/repository"
	"CostPull/pkg/logger"
)

const freshnessDecay = 0.75

// Scorer grades every collection run and gates chronically bad sources out
// of downstream model training.
type Scorer struct {
	runs      repository.RunStore
	metrics   repository.Metrics
	threshold float64
	rollingN  int

	mu     sync.Mutex
	misses map[string]int // consecutive failed runs per provider

	log *logger.Logger
}

func NewScorer(runs repository.RunStore, metrics repository.Metrics, threshold float64, rollingN int) *Scorer {
	if rollingN <= 0 {
		rollingN = 3
	}
	return &Scorer{
		runs:      runs,
		metrics:   metrics,
		threshold: threshold,
		rollingN:  rollingN,
		misses:    make(map[string]int),
	}
}

// SetLogger injects a structured logger.
func (s *Scorer) SetLogger(log *logger.Logger) { s.log = log }

// Score computes and persists the quality breakdown for one finished run.
// expectedBaseline is the configured expected daily record count for the
// provider; zero disables the completeness component penalty.
func (s *Scorer) Score(ctx context.Context, run models.CollectionRun, expectedBaseline float64) (models.QualityScore, error) {
	s.mu.Lock()
	if run.Status == models.RunStatusSuccess {
		s.misses[run.Provider] = 0
	} else {
		s.misses[run.Provider]++
	}
	misses := s.misses[run.Provider]
	s.mu.Unlock()

	freshness := math.Pow(freshnessDecay, float64(misses))

	var completeness, availability float64
	if run.Status == models.RunStatusSuccess {
		availability = 1
		completeness = 1
		if expectedBaseline > 0 {
			completeness = math.Min(float64(run.FetchedCount)/expectedBaseline, 1)
		}
	}

	score := models.QualityScore{
		Provider:     run.Provider,
		RunAt:        run.CompletedAt,
		Freshness:    freshness,
		Completeness: completeness,
		Availability: availability,
		Overall:      (freshness + completeness + availability) / 3,
	}

	if err := s.runs.RecordQuality(ctx, score); err != nil {
		return score, err
	}
	s.metrics.RecordQuality(run.Provider, score.Overall)
	if s.log != nil {
		s.log.Debug("quality scored",
			logger.String("provider", run.Provider),
			logger.Any("overall", score.Overall))
	}
	return score, nil
}

// Excluded reports whether a provider's rolling quality has fallen below the
// exclusion threshold. Excluded providers keep collecting but their history
// is not fed to model training. A successful latest run lifts the exclusion
// immediately; while the latest run is a failure, the rolling mean decides.
func (s *Scorer) Excluded(ctx context.Context, provider string) (bool, error) {
	scores, err := s.runs.RecentQuality(ctx, provider, s.rollingN)
	if err != nil {
		return false, err
	}
	if len(scores) == 0 {
		return false, nil
	}

	latest := scores[0]
	var sum float64
	for _, sc := range scores {
		sum += sc.Overall
		if sc.RunAt.After(latest.RunAt) {
			latest = sc
		}
	}
	if latest.Availability >= 1 {
		return false, nil
	}
	return sum/float64(len(scores)) < s.threshold, nil
}

// RollingQuality returns the mean overall score of the last N runs and how
// many runs contributed.
func (s *Scorer) RollingQuality(ctx context.Context, provider string) (float64, int, error) {
	scores, err := s.runs.RecentQuality(ctx, provider, s.rollingN)
	if err != nil {
		return 0, 0, err
	}
	if len(scores) == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, sc := range scores {
		sum += sc.Overall
	}
	return sum / float64(len(scores)), len(scores), nil
}

// ConsecutiveMisses exposes the current failure streak, used by the health
// report.
func (s *Scorer) ConsecutiveMisses(provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misses[provider]
}
