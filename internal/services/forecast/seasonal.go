package forecast

import (
	"math"
	"time"

	"CostPull/internal/domain/models"
)

const minSeasonalPoints = 20

// seasonalModel captures a linear trend plus day-of-week seasonal means over
// a regular daily cadence. Intervals come from the residual standard
// deviation of the fit.
type seasonalModel struct {
	slope          float64 // cost change per day
	level          float64 // fitted value at the last training day
	lastDay        time.Time
	dowOffset      [7]float64 // seasonal offset per weekday
	dowCount       [7]int
	residualStdDev float64
}

func newSeasonalModel() *seasonalModel { return &seasonalModel{} }

func (m *seasonalModel) Tier() models.ModelTier { return models.TierSeasonal }

func (m *seasonalModel) Train(history []models.DailyPoint) error {
	if len(history) < minSeasonalPoints {
		return &InsufficientDataError{Tier: string(models.TierSeasonal), Need: minSeasonalPoints, Have: len(history)}
	}

	// Trend: least-squares slope over the whole series.
	n := float64(len(history))
	var sumX, sumY, sumXY, sumX2 float64
	for i, p := range history {
		x := float64(i)
		sumX += x
		sumY += p.Cost
		sumXY += x * p.Cost
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return &ModelTrainingError{Tier: string(models.TierSeasonal), Err: errDegenerateSeries}
	}
	m.slope = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - m.slope*sumX) / n
	m.level = intercept + m.slope*float64(len(history)-1)
	m.lastDay = history[len(history)-1].Date

	// Seasonal offsets: mean detrended value per weekday.
	var dowSum [7]float64
	for i, p := range history {
		detrended := p.Cost - (intercept + m.slope*float64(i))
		d := int(p.Date.Weekday())
		dowSum[d] += detrended
		m.dowCount[d]++
	}
	for d := 0; d < 7; d++ {
		if m.dowCount[d] > 0 {
			m.dowOffset[d] = dowSum[d] / float64(m.dowCount[d])
		}
	}

	// Residuals against trend + seasonal fit.
	var ss float64
	for i, p := range history {
		fit := intercept + m.slope*float64(i) + m.dowOffset[int(p.Date.Weekday())]
		ss += (p.Cost - fit) * (p.Cost - fit)
	}
	if len(history) > 1 {
		m.residualStdDev = math.Sqrt(ss / float64(len(history)-1))
	}
	return nil
}

func (m *seasonalModel) Forecast(horizon int) []models.PredictionPoint {
	points := make([]models.PredictionPoint, 0, horizon)
	band := 1.645 * m.residualStdDev // ~90% interval
	for i := 1; i <= horizon; i++ {
		day := m.lastDay.AddDate(0, 0, i)
		point := m.level + m.slope*float64(i) + m.dowOffset[int(day.Weekday())]
		points = append(points, clampPoint(day, point, band))
	}
	return points
}

func clampPoint(ts time.Time, point, band float64) models.PredictionPoint {
	if point < 0 {
		point = 0
	}
	lower := point - band
	if lower < 0 {
		lower = 0
	}
	return models.PredictionPoint{Timestamp: ts, Point: point, Lower: lower, Upper: point + band}
}
