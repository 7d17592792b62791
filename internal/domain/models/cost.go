package models

import (
	"fmt"
	"time"
)

// Granularity controls how cost summaries are bucketed.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// Window is a half-open [Start, End) collection range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// String renders the window for cache keys and logs.
func (w Window) String() string {
	return fmt.Sprintf("%s/%s", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// CostRecord is the canonical normalized unit of one resource's spend for one
// day. Immutable once persisted; rewrites happen only via natural-key replace.
type CostRecord struct {
	Provider      string            `json:"provider"`
	AccountID     string            `json:"account_id"`
	Service       string            `json:"service"`
	ResourceID    string            `json:"resource_id"`
	Cost          float64           `json:"cost"`
	Currency      string            `json:"currency"`
	UsageDate     time.Time         `json:"usage_date"`
	UsageQuantity float64           `json:"usage_quantity"`
	UsageUnit     string            `json:"usage_unit"`
	Region        string            `json:"region"`
	Tags          map[string]string `json:"tags,omitempty"`
	BillingPeriod string            `json:"billing_period"`
}

// NaturalKey identifies a record for dedup and idempotent upsert.
func (r CostRecord) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", r.Provider, r.ResourceID, r.Service, r.UsageDate.UTC().Format("2006-01-02"))
}

// RawUsage is a provider-native line item before normalization. Adapters fill
// what their API returns; the normalizer supplies defaults for the rest.
type RawUsage struct {
	AccountID     string
	Service       string
	ResourceID    string
	Cost          float64
	Currency      string
	UsageDate     time.Time
	UsageQuantity float64
	UsageUnit     string
	Region        string
	Tags          map[string]string
}

// CostSummaryRow is one aggregated bucket of a cost summary query.
type CostSummaryRow struct {
	Bucket   time.Time `json:"bucket"`
	Provider string    `json:"provider,omitempty"`
	Service  string    `json:"service,omitempty"`
	Region   string    `json:"region,omitempty"`
	Total    float64   `json:"total"`
	Currency string    `json:"currency"`
	Records  int       `json:"records"`
}

// Freshness markers for cached versus just-computed answers.
const (
	FreshnessLive   = "live"
	FreshnessCached = "cached"
)

// CostSummary is the query-boundary response for spend over a range.
type CostSummary struct {
	Rows      []CostSummaryRow `json:"rows"`
	Total     float64          `json:"total"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Freshness string           `json:"freshness"` // "cached" or "live"
	FetchedAt time.Time        `json:"fetched_at"`
}
