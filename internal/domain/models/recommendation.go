package models

import "time"

// RecommendationKind classifies an advisory.
type RecommendationKind string

const (
	RecommendationRightsizing  RecommendationKind = "rightsizing"
	RecommendationBudgetReview RecommendationKind = "budget_review"
	RecommendationInvestigate  RecommendationKind = "investigate_anomaly"
	RecommendationProvider     RecommendationKind = "provider_native"
)

// EstimateBasisAdvisory labels savings bands as heuristic estimates rather
// than measured outcomes. Every synthesized recommendation carries it.
const EstimateBasisAdvisory = "advisory"

// Recommendation is one ranked cost advisory from the synthesizer.
type Recommendation struct {
	ID               string             `json:"id"`
	Kind             RecommendationKind `json:"kind"`
	Provider         string             `json:"provider"`
	Service          string             `json:"service"`
	Summary          string             `json:"summary"`
	SavingsLowMonth  float64            `json:"savings_low_month"`
	SavingsHighMonth float64            `json:"savings_high_month"`
	EstimateBasis    string             `json:"estimate_basis"` // always "advisory"
	AnomalyID        string             `json:"anomaly_id,omitempty"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// ProviderRecommendation is a native advisory returned by a billing API's
// recommendations listing, passed through with provenance.
type ProviderRecommendation struct {
	Provider    string  `json:"provider"`
	ResourceID  string  `json:"resource_id"`
	Description string  `json:"description"`
	Savings     float64 `json:"savings"`
	Currency    string  `json:"currency"`
}
