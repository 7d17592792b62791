package models

import "time"

// ModelState is the lifecycle state of one (provider, service) forecast model.
type ModelState string

const (
	ModelUntrained  ModelState = "untrained"
	ModelTraining   ModelState = "training"
	ModelReady      ModelState = "ready"
	ModelStale      ModelState = "stale"
	ModelRetraining ModelState = "retraining"
	ModelDegraded   ModelState = "degraded" // insufficient data, heuristic only
)

// ModelTier identifies one strategy in the forecasting cascade.
type ModelTier string

const (
	TierSeasonal   ModelTier = "seasonal"
	TierRegression ModelTier = "regression"
	TierMinimal    ModelTier = "minimal"
	TierHeuristic  ModelTier = "heuristic"
)

// ForecastModel is the per-(provider, service) model metadata the engine
// registry keeps and persists.
type ForecastModel struct {
	Provider    string     `json:"provider"`
	Service     string     `json:"service"`
	Tier        ModelTier  `json:"tier"`
	State       ModelState `json:"state"`
	TrainedAt   time.Time  `json:"trained_at"`
	MAE         float64    `json:"mae"`
	RMSE        float64    `json:"rmse"`
	SampleCount int        `json:"sample_count"`
}

// PredictionPoint is one forecast step with its interval.
type PredictionPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Point     float64   `json:"point"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Prediction is an ephemeral forecast for one key, regenerated per query.
type Prediction struct {
	Provider    string            `json:"provider"`
	Service     string            `json:"service"`
	Tier        ModelTier         `json:"tier"`
	Points      []PredictionPoint `json:"points"`
	Confidence  float64           `json:"confidence"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// DailyPoint is one day of aggregated history used for training and anomaly
// detection: total cost plus total usage quantity for the key.
type DailyPoint struct {
	Date     time.Time `json:"date"`
	Cost     float64   `json:"cost"`
	Quantity float64   `json:"quantity"`
}
