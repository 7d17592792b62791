package models

import "time"

// RunStatus is the terminal state of one provider collection task.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped" // previous fetch still in flight
)

// CollectionRun records one (provider, window) collection attempt.
type CollectionRun struct {
	Provider     string    `json:"provider"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Status       RunStatus `json:"status"`
	FetchedCount int       `json:"fetched_count"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	Error        string    `json:"error,omitempty"`
	QualityScore float64   `json:"quality_score"`
}

// QualityScore is the composite per-run source quality breakdown.
type QualityScore struct {
	Provider     string    `json:"provider"`
	RunAt        time.Time `json:"run_at"`
	Freshness    float64   `json:"freshness"`
	Completeness float64   `json:"completeness"`
	Availability float64   `json:"availability"`
	Overall      float64   `json:"overall"`
}

// ProviderHealth is one provider's slice of the pipeline health report.
type ProviderHealth struct {
	Provider       string         `json:"provider"`
	LastRun        *CollectionRun `json:"last_run,omitempty"`
	RollingQuality float64        `json:"rolling_quality"`
	Excluded       bool           `json:"excluded"`
	CredentialsOK  *bool          `json:"credentials_ok,omitempty"`
}

// PipelineHealth is the query-boundary health report.
type PipelineHealth struct {
	Providers    []ProviderHealth `json:"providers"`
	StorageOK    bool             `json:"storage_ok"`
	CacheOK      bool             `json:"cache_ok"`
	RecentErrors []string         `json:"recent_errors,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}
