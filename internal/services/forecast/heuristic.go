package forecast

import (
	"time"

	"CostPull/internal/domain/models"
	"CostPull/pkg/util"
)

// heuristicConfidenceCap bounds the confidence any heuristic forecast can
// report. The heuristic is always viable, including on zero history.
const heuristicConfidenceCap = 0.6

// globalPriorDailyCost seeds the heuristic when a key has no history at all.
const globalPriorDailyCost = 10.0

// heuristicModel forecasts the historical mean scaled by weekday/weekend
// multipliers learned from whatever history exists.
type heuristicModel struct {
	weekdayMean float64
	weekendMean float64
	spread      float64
	lastDay     time.Time
}

func newHeuristicModel() *heuristicModel { return &heuristicModel{} }

func (m *heuristicModel) Tier() models.ModelTier { return models.TierHeuristic }

func (m *heuristicModel) Train(history []models.DailyPoint) error {
	m.lastDay = util.DayOf(time.Now())
	if len(history) == 0 {
		m.weekdayMean = globalPriorDailyCost
		m.weekendMean = globalPriorDailyCost
		m.spread = globalPriorDailyCost // intervals as wide as the prior itself
		return nil
	}
	m.lastDay = history[len(history)-1].Date

	var wdSum, weSum, min, max float64
	var wdN, weN int
	min = history[0].Cost
	max = history[0].Cost
	for _, p := range history {
		if util.IsWeekend(p.Date) {
			weSum += p.Cost
			weN++
		} else {
			wdSum += p.Cost
			wdN++
		}
		if p.Cost < min {
			min = p.Cost
		}
		if p.Cost > max {
			max = p.Cost
		}
	}
	switch {
	case wdN > 0 && weN > 0:
		m.weekdayMean = wdSum / float64(wdN)
		m.weekendMean = weSum / float64(weN)
	case wdN > 0:
		m.weekdayMean = wdSum / float64(wdN)
		m.weekendMean = m.weekdayMean * 0.7
	default:
		m.weekendMean = weSum / float64(weN)
		m.weekdayMean = m.weekendMean / 0.7
	}
	m.spread = (max - min) / 2
	if m.spread == 0 {
		m.spread = m.weekdayMean * 0.25
	}
	return nil
}

func (m *heuristicModel) Forecast(horizon int) []models.PredictionPoint {
	points := make([]models.PredictionPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		day := m.lastDay.AddDate(0, 0, i)
		point := m.weekdayMean
		if util.IsWeekend(day) {
			point = m.weekendMean
		}
		points = append(points, clampPoint(day, point, m.spread))
	}
	return points
}
