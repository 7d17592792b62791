package forecast

import (
	"errors"
	"math"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/pkg/util"
)

const (
	minRegressionPoints = 30
	minMinimalPoints    = 5
	rollingWindow       = 7
)

var errDegenerateSeries = errors.New("series has no variance")

// regressionModel fits ordinary least squares over lag and calendar
// features. Tier 2 uses the full feature set on longer histories; tier 3
// drops to a minimal set so it can fit on as few as five points.
type regressionModel struct {
	minimal        bool
	coeffs         []float64 // intercept first
	history        []float64 // training tail kept for recursive lag lookup
	lastDay        time.Time
	residualStdDev float64
}

func newRegressionModel() *regressionModel { return &regressionModel{} }
func newMinimalModel() *regressionModel    { return &regressionModel{minimal: true} }

func (m *regressionModel) Tier() models.ModelTier {
	if m.minimal {
		return models.TierMinimal
	}
	return models.TierRegression
}

// features builds the regressor row for day index i of series, with the day's
// date for calendar terms. series must hold at least one prior value.
func (m *regressionModel) features(series []float64, i int, day time.Time) []float64 {
	lag1 := series[i-1]
	lag7 := lag1
	if i >= rollingWindow {
		lag7 = series[i-rollingWindow]
	}
	roll := rollingMean(series[:i], rollingWindow)

	if m.minimal {
		return []float64{1, lag1, roll}
	}
	weekend := 0.0
	if util.IsWeekend(day) {
		weekend = 1
	}
	return []float64{1, lag1, lag7, roll, float64(day.Weekday()), weekend}
}

func (m *regressionModel) Train(history []models.DailyPoint) error {
	need := minRegressionPoints
	if m.minimal {
		need = minMinimalPoints
	}
	if len(history) < need {
		return &InsufficientDataError{Tier: string(m.Tier()), Need: need, Have: len(history)}
	}

	series := make([]float64, len(history))
	for i, p := range history {
		series[i] = p.Cost
	}

	var rows [][]float64
	var targets []float64
	for i := 1; i < len(history); i++ {
		rows = append(rows, m.features(series, i, history[i].Date))
		targets = append(targets, series[i])
	}

	coeffs, err := solveLeastSquares(rows, targets)
	if err != nil {
		return &ModelTrainingError{Tier: string(m.Tier()), Err: err}
	}
	m.coeffs = coeffs
	m.lastDay = history[len(history)-1].Date

	// Keep enough tail for lag lookups during forecasting.
	tail := len(series)
	if tail > 2*rollingWindow {
		tail = 2 * rollingWindow
	}
	m.history = append([]float64(nil), series[len(series)-tail:]...)

	var ss float64
	for i, row := range rows {
		ss += sq(targets[i] - dot(m.coeffs, row))
	}
	if len(rows) > len(coeffs) {
		m.residualStdDev = math.Sqrt(ss / float64(len(rows)-len(coeffs)))
	}
	return nil
}

// Forecast predicts recursively: each step's lag features come from the
// training tail extended with prior predictions.
func (m *regressionModel) Forecast(horizon int) []models.PredictionPoint {
	series := append([]float64(nil), m.history...)
	points := make([]models.PredictionPoint, 0, horizon)
	band := 1.645 * m.residualStdDev
	for i := 1; i <= horizon; i++ {
		day := m.lastDay.AddDate(0, 0, i)
		row := m.features(series, len(series), day)
		point := dot(m.coeffs, row)
		points = append(points, clampPoint(day, point, band))
		series = append(series, math.Max(point, 0))
	}
	return points
}

func rollingMean(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if len(series) < window {
		window = len(series)
	}
	var sum float64
	for _, v := range series[len(series)-window:] {
		sum += v
	}
	return sum / float64(window)
}

func dot(coeffs, row []float64) float64 {
	var v float64
	for i := range coeffs {
		v += coeffs[i] * row[i]
	}
	return v
}

func sq(x float64) float64 { return x * x }

// solveLeastSquares solves the normal equations XᵀX β = Xᵀy by Gaussian
// elimination with partial pivoting. A tiny ridge term keeps near-collinear
// feature sets solvable.
func solveLeastSquares(rows [][]float64, targets []float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errDegenerateSeries
	}
	k := len(rows[0])
	a := make([][]float64, k)
	b := make([]float64, k)
	for i := 0; i < k; i++ {
		a[i] = make([]float64, k)
	}
	for r, row := range rows {
		for i := 0; i < k; i++ {
			b[i] += row[i] * targets[r]
			for j := 0; j < k; j++ {
				a[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < k; i++ {
		a[i][i] += 1e-8
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errDegenerateSeries
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < k; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < k; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	coeffs := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		v := b[i]
		for j := i + 1; j < k; j++ {
			v -= a[i][j] * coeffs[j]
		}
		coeffs[i] = v / a[i][i]
	}
	return coeffs, nil
}
