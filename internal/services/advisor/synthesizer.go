package advisor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"CostPull/internal/domain/models"
	"CostPull/internal/domain/repository"
	"CostPull/internal/providers"
	"CostPull/pkg/logger"
)

const (
	lookbackDays = 30

	// highSpendDailyAvg is the sustained daily average above which a service
	// becomes a rightsizing candidate.
	highSpendDailyAvg = 50.0

	// risingTrendFactor compares the forecast's mean daily cost to the
	// observed daily average; above it a budget review is advised.
	risingTrendFactor = 1.15
)

// forecaster is the slice of the forecasting engine the synthesizer needs.
type forecaster interface {
	Predict(ctx context.Context, provider, service string, horizonDays int) models.Prediction
}

// Synthesizer combines spend levels, forecast trend, open anomalies, and
// provider-native advisories into one ranked list. All savings bands are
// heuristic estimates and labeled as such.
type Synthesizer struct {
	costs     repository.CostStore
	anomalies repository.AnomalyStore
	engine    forecaster
	registry  *providers.Registry

	log *logger.Logger
}

func NewSynthesizer(costs repository.CostStore, anomalies repository.AnomalyStore, engine forecaster, registry *providers.Registry) *Synthesizer {
	return &Synthesizer{costs: costs, anomalies: anomalies, engine: engine, registry: registry}
}

// SetLogger injects a structured logger.
func (s *Synthesizer) SetLogger(log *logger.Logger) { s.log = log }

// Synthesize builds the ranked advisory list across all given providers.
func (s *Synthesizer) Synthesize(ctx context.Context, providerNames []string) ([]models.Recommendation, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -lookbackDays)

	var recs []models.Recommendation
	for _, provider := range providerNames {
		services, err := s.costs.Services(ctx, provider, since)
		if err != nil {
			return nil, fmt.Errorf("list services for %s: %w", provider, err)
		}

		openByService := make(map[string]models.Anomaly)
		open, err := s.anomalies.Open(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("open anomalies for %s: %w", provider, err)
		}
		for _, a := range open {
			// Keep the worst open anomaly per service.
			if prev, ok := openByService[a.Service]; !ok || worse(a.Severity, prev.Severity) {
				openByService[a.Service] = a
			}
		}

		for _, service := range services {
			history, err := s.costs.DailyHistory(ctx, provider, service, since, now)
			if err != nil {
				return nil, fmt.Errorf("history for %s/%s: %w", provider, service, err)
			}
			if len(history) == 0 {
				continue
			}
			dailyAvg := avgCost(history)

			if dailyAvg >= highSpendDailyAvg {
				recs = append(recs, s.rightsizing(provider, service, dailyAvg, openByService[service]))
			}

			pred := s.engine.Predict(ctx, provider, service, 7)
			if forecastAvg(pred) > dailyAvg*risingTrendFactor {
				recs = append(recs, s.budgetReview(provider, service, dailyAvg, forecastAvg(pred)))
			}

			if a, ok := openByService[service]; ok && a.Severity != models.SeverityLow {
				recs = append(recs, s.investigate(a))
			}
		}

		recs = append(recs, s.providerNative(ctx, provider)...)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].SavingsHighMonth > recs[j].SavingsHighMonth
	})
	return recs, nil
}

func (s *Synthesizer) rightsizing(provider, service string, dailyAvg float64, open models.Anomaly) models.Recommendation {
	summary := fmt.Sprintf("%s/%s sustains a high daily average of %.2f; review sizing of the underlying resources", provider, service, dailyAvg)
	rec := models.Recommendation{
		ID:               uuid.NewString(),
		Kind:             models.RecommendationRightsizing,
		Provider:         provider,
		Service:          service,
		Summary:          summary,
		SavingsLowMonth:  dailyAvg * 30 * 0.10,
		SavingsHighMonth: dailyAvg * 30 * 0.30,
		EstimateBasis:    models.EstimateBasisAdvisory,
		GeneratedAt:      time.Now().UTC(),
	}
	if open.ID != "" {
		rec.AnomalyID = open.ID
		rec.Summary += fmt.Sprintf("; an open %s anomaly on %s suggests recent drift", open.Severity, open.Timestamp.Format("2006-01-02"))
	}
	return rec
}

func (s *Synthesizer) budgetReview(provider, service string, dailyAvg, forecastDaily float64) models.Recommendation {
	delta := forecastDaily - dailyAvg
	return models.Recommendation{
		ID:               uuid.NewString(),
		Kind:             models.RecommendationBudgetReview,
		Provider:         provider,
		Service:          service,
		Summary:          fmt.Sprintf("%s/%s forecast trends up from %.2f to %.2f per day; review the budget before month end", provider, service, dailyAvg, forecastDaily),
		SavingsLowMonth:  delta * 30 * 0.25,
		SavingsHighMonth: delta * 30,
		EstimateBasis:    models.EstimateBasisAdvisory,
		GeneratedAt:      time.Now().UTC(),
	}
}

func (s *Synthesizer) investigate(a models.Anomaly) models.Recommendation {
	excess := a.Actual - a.Expected
	if excess < 0 {
		excess = 0
	}
	return models.Recommendation{
		ID:               uuid.NewString(),
		Kind:             models.RecommendationInvestigate,
		Provider:         a.Provider,
		Service:          a.Service,
		Summary:          fmt.Sprintf("open %s anomaly on %s: %s/%s cost %.2f vs expected %.2f", a.Severity, a.Timestamp.Format("2006-01-02"), a.Provider, a.Service, a.Actual, a.Expected),
		SavingsLowMonth:  0,
		SavingsHighMonth: excess,
		EstimateBasis:    models.EstimateBasisAdvisory,
		AnomalyID:        a.ID,
		GeneratedAt:      time.Now().UTC(),
	}
}

// providerNative passes billing-API advisories through with provenance; a
// provider failure here never blocks the synthesized advisories.
func (s *Synthesizer) providerNative(ctx context.Context, provider string) []models.Recommendation {
	if s.registry == nil {
		return nil
	}
	adapter, ok := s.registry.Get(provider)
	if !ok {
		return nil
	}
	native, err := adapter.ListRecommendations(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Warn("provider recommendations unavailable",
				logger.String("provider", provider),
				logger.Error(err))
		}
		return nil
	}
	recs := make([]models.Recommendation, 0, len(native))
	for _, n := range native {
		recs = append(recs, models.Recommendation{
			ID:               uuid.NewString(),
			Kind:             models.RecommendationProvider,
			Provider:         n.Provider,
			Service:          n.ResourceID,
			Summary:          n.Description,
			SavingsLowMonth:  n.Savings * 0.5,
			SavingsHighMonth: n.Savings,
			EstimateBasis:    models.EstimateBasisAdvisory,
			GeneratedAt:      time.Now().UTC(),
		})
	}
	return recs
}

func avgCost(history []models.DailyPoint) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, p := range history {
		sum += p.Cost
	}
	return sum / float64(len(history))
}

func forecastAvg(p models.Prediction) float64 {
	if len(p.Points) == 0 {
		return 0
	}
	var sum float64
	for _, pt := range p.Points {
		sum += pt.Point
	}
	return sum / float64(len(p.Points))
}

func worse(a, b models.AnomalySeverity) bool {
	rank := map[models.AnomalySeverity]int{
		models.SeverityLow:      0,
		models.SeverityHigh:     1,
		models.SeverityCritical: 2,
	}
	return rank[a] > rank[b]
}
