package providers

import (
	"context"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
)

// AWSAdapter pulls grouped cost-and-usage data from a Cost Explorer style
// API. Responses are grouped by (service, resource) per day.
type AWSAdapter struct {
	apiBase
}

func NewAWSAdapter(cfg config.ProviderConfig, retry *RetryPolicy, limiter *Limiter) *AWSAdapter {
	return &AWSAdapter{apiBase: newAPIBase("aws", cfg, retry, limiter)}
}

func (a *AWSAdapter) Name() string { return "aws" }

type awsCostRequest struct {
	TimePeriod  awsTimePeriod `json:"TimePeriod"`
	Granularity string        `json:"Granularity"`
	GroupBy     []awsGroupBy  `json:"GroupBy"`
	Metrics     []string      `json:"Metrics"`
}

type awsTimePeriod struct {
	Start string `json:"Start"`
	End   string `json:"End"`
}

type awsGroupBy struct {
	Type string `json:"Type"`
	Key  string `json:"Key"`
}

type awsCostResponse struct {
	ResultsByTime []struct {
		TimePeriod awsTimePeriod `json:"TimePeriod"`
		Groups     []struct {
			Keys    []string `json:"Keys"` // [service, resource_id]
			Metrics map[string]struct {
				Amount string `json:"Amount"`
				Unit   string `json:"Unit"`
			} `json:"Metrics"`
			Attributes map[string]string `json:"Attributes"`
		} `json:"Groups"`
	} `json:"ResultsByTime"`
}

func (a *AWSAdapter) FetchCostData(ctx context.Context, window models.Window) ([]models.RawUsage, error) {
	req := awsCostRequest{
		TimePeriod: awsTimePeriod{
			Start: window.Start.UTC().Format("2006-01-02"),
			End:   window.End.UTC().Format("2006-01-02"),
		},
		Granularity: "DAILY",
		GroupBy: []awsGroupBy{
			{Type: "DIMENSION", Key: "SERVICE"},
			{Type: "DIMENSION", Key: "RESOURCE_ID"},
		},
		Metrics: []string{"UnblendedCost", "UsageQuantity"},
	}

	var resp awsCostResponse
	err := a.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     a.cfg.APIEndpoint + "/GetCostAndUsage",
		Headers: a.headers(),
		Body:    req,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.RawUsage, 0, 256)
	for _, rbt := range resp.ResultsByTime {
		day, perr := time.Parse("2006-01-02", rbt.TimePeriod.Start)
		if perr != nil {
			continue // malformed period, skip the day
		}
		for _, g := range rbt.Groups {
			if len(g.Keys) < 2 {
				continue
			}
			cost, ok := parseAmount(g.Metrics["UnblendedCost"].Amount)
			if !ok {
				continue // MalformedRecordError semantics: skip item, keep batch
			}
			qty, _ := parseAmount(g.Metrics["UsageQuantity"].Amount)
			out = append(out, models.RawUsage{
				AccountID:     a.cfg.AccountID,
				Service:       g.Keys[0],
				ResourceID:    g.Keys[1],
				Cost:          cost,
				Currency:      g.Metrics["UnblendedCost"].Unit,
				UsageDate:     day,
				UsageQuantity: qty,
				UsageUnit:     g.Metrics["UsageQuantity"].Unit,
				Region:        g.Attributes["region"],
				Tags:          nil,
			})
		}
	}
	return out, nil
}

type awsRecsResponse struct {
	RightsizingRecommendations []struct {
		ResourceID       string  `json:"ResourceId"`
		Finding          string  `json:"Finding"`
		EstimatedSavings float64 `json:"EstimatedMonthlySavings"`
		Currency         string  `json:"CurrencyCode"`
	} `json:"RightsizingRecommendations"`
}

func (a *AWSAdapter) ListRecommendations(ctx context.Context) ([]models.ProviderRecommendation, error) {
	var resp awsRecsResponse
	err := a.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     a.cfg.APIEndpoint + "/GetRightsizingRecommendation",
		Headers: a.headers(),
		Body:    map[string]string{"Service": "AmazonEC2"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	recs := make([]models.ProviderRecommendation, 0, len(resp.RightsizingRecommendations))
	for _, r := range resp.RightsizingRecommendations {
		recs = append(recs, models.ProviderRecommendation{
			Provider:    "aws",
			ResourceID:  r.ResourceID,
			Description: r.Finding,
			Savings:     r.EstimatedSavings,
			Currency:    r.Currency,
		})
	}
	return recs, nil
}

func (a *AWSAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	err := a.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     a.cfg.APIEndpoint + "/GetCostAndUsage",
		Headers: a.headers(),
		Body: awsCostRequest{
			TimePeriod:  awsTimePeriod{Start: time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"), End: time.Now().UTC().Format("2006-01-02")},
			Granularity: "DAILY",
			Metrics:     []string{"UnblendedCost"},
		},
	}, nil)
	if err != nil {
		if IsAuth(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *AWSAdapter) headers() map[string]string {
	return map[string]string{
		"Content-Type":  "application/x-amz-json-1.1",
		"Authorization": "Bearer " + a.cfg.APIKey,
	}
}
