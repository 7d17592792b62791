package models

import "time"

// AnomalySeverity buckets how far a point sits from expectation.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyStatus tracks operator disposition. Resolution happens outside the
// pipeline; the detector only opens anomalies.
type AnomalyStatus string

const (
	AnomalyOpen     AnomalyStatus = "open"
	AnomalyResolved AnomalyStatus = "resolved"
)

// Anomaly is one flagged cost outlier for a (provider, service, day) bucket.
type Anomaly struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Provider  string          `json:"provider"`
	Service   string          `json:"service"`
	Actual    float64         `json:"actual"`
	Expected  float64         `json:"expected"`
	Score     float64         `json:"score"` // sigmas for z-score mode, outlier score for multivariate
	Severity  AnomalySeverity `json:"severity"`
	Status    AnomalyStatus   `json:"status"`
	Method    string          `json:"method"` // "zscore" or "outlier_forest"
	CreatedAt time.Time       `json:"created_at"`
}

// DayBucket is the dedup key: one open anomaly per (provider, service, day).
func (a Anomaly) DayBucket() string {
	return a.Provider + "|" + a.Service + "|" + a.Timestamp.UTC().Format("2006-01-02")
}
