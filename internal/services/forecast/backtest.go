package forecast

import (
	"math"

	"CostPull/internal/domain/models"
)

// tierModel is one strategy in the cascade.
type tierModel interface {
	Tier() models.ModelTier
	Train(history []models.DailyPoint) error
	Forecast(horizon int) []models.PredictionPoint
}

// accuracy is the result of a backtest on the held-out tail.
type accuracy struct {
	MAE  float64
	RMSE float64
}

// holdoutSplit returns train/test slices with roughly the last 20% held
// out, always at least one test point when the series allows it.
func holdoutSplit(history []models.DailyPoint) (train, test []models.DailyPoint) {
	if len(history) < 2 {
		return history, nil
	}
	n := len(history) / 5
	if n < 1 {
		n = 1
	}
	cut := len(history) - n
	return history[:cut], history[cut:]
}

// backtest trains a fresh model of the candidate's kind on the head of the
// series and scores its forecast against the held-out tail.
func backtest(build func() tierModel, history []models.DailyPoint) (accuracy, error) {
	train, test := holdoutSplit(history)
	if len(test) == 0 {
		return accuracy{}, nil
	}
	probe := build()
	if err := probe.Train(train); err != nil {
		return accuracy{}, err
	}
	points := probe.Forecast(len(test))

	var absSum, sqSum float64
	for i, want := range test {
		diff := points[i].Point - want.Cost
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}
	n := float64(len(test))
	return accuracy{MAE: absSum / n, RMSE: math.Sqrt(sqSum / n)}, nil
}

// meanCost is the average daily cost of a series, used to judge accuracy
// relative to the spend level.
func meanCost(history []models.DailyPoint) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, p := range history {
		sum += p.Cost
	}
	return sum / float64(len(history))
}
