package models

// Requests for the query-boundary HTTP endpoints. Defined in domain for consistency and reuse.

type CostSummaryRequest struct {
	Providers   string `query:"providers" json:"providers"` // comma separated; empty = all
	Start       string `query:"start" json:"start" validate:"required"`
	End         string `query:"end" json:"end" validate:"required"`
	GroupBy     string `query:"group_by" json:"group_by" default:"service"` // comma separated: provider,service,region
	Granularity string `query:"granularity" json:"granularity" default:"daily" validate:"oneof=daily monthly"`
}

type ForecastRequest struct {
	Provider     string `query:"provider" json:"provider" validate:"required"`
	Service      string `query:"service" json:"service" validate:"required"`
	HorizonHours int    `query:"horizon_hours" json:"horizon_hours" default:"168" validate:"gte=24,lte=2160"`
}

type AnomaliesRequest struct {
	Provider string `query:"provider" json:"provider"`
	Severity string `query:"severity" json:"severity" validate:"omitempty,oneof=low high critical"`
	DaysBack int    `query:"days_back" json:"days_back" default:"7" validate:"gte=1,lte=90"`
}
