package providers

import (
	"context"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
)

// GCPAdapter reads billing-export style line items. GCP exposes billing data
// as flat line items rather than grouped results, so mapping is direct.
type GCPAdapter struct {
	apiBase
}

func NewGCPAdapter(cfg config.ProviderConfig, retry *RetryPolicy, limiter *Limiter) *GCPAdapter {
	return &GCPAdapter{apiBase: newAPIBase("gcp", cfg, retry, limiter)}
}

func (g *GCPAdapter) Name() string { return "gcp" }

type gcpLineItem struct {
	Service struct {
		Description string `json:"description"`
	} `json:"service"`
	Resource struct {
		Name string `json:"name"`
	} `json:"resource"`
	Cost      float64 `json:"cost"`
	Currency  string  `json:"currency"`
	UsageDate string  `json:"usage_start_time"`
	Usage     struct {
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
	} `json:"usage"`
	Location struct {
		Region string `json:"region"`
	} `json:"location"`
	Labels map[string]string `json:"labels"`
}

type gcpBillingResponse struct {
	LineItems     []gcpLineItem `json:"line_items"`
	NextPageToken string        `json:"next_page_token"`
}

func (g *GCPAdapter) FetchCostData(ctx context.Context, window models.Window) ([]models.RawUsage, error) {
	out := make([]models.RawUsage, 0, 256)
	pageToken := ""
	for {
		params := map[string][]string{
			"start_time": {window.Start.UTC().Format(time.RFC3339)},
			"end_time":   {window.End.UTC().Format(time.RFC3339)},
		}
		if pageToken != "" {
			params["page_token"] = []string{pageToken}
		}

		var resp gcpBillingResponse
		err := g.call(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         g.cfg.APIEndpoint + "/v1/billingAccounts/" + g.cfg.AccountID + "/costs",
			Headers:     g.headers(),
			QueryParams: params,
		}, &resp)
		if err != nil {
			return nil, err
		}

		for _, item := range resp.LineItems {
			day, perr := time.Parse(time.RFC3339, item.UsageDate)
			if perr != nil {
				continue // unparseable timestamp, skip item
			}
			out = append(out, models.RawUsage{
				AccountID:     g.cfg.AccountID,
				Service:       item.Service.Description,
				ResourceID:    item.Resource.Name,
				Cost:          item.Cost,
				Currency:      item.Currency,
				UsageDate:     day,
				UsageQuantity: item.Usage.Amount,
				UsageUnit:     item.Usage.Unit,
				Region:        item.Location.Region,
				Tags:          item.Labels,
			})
		}

		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

type gcpRecsResponse struct {
	Recommendations []struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		PrimaryImpact struct {
			CostProjection struct {
				Cost struct {
					Units float64 `json:"units"`
				} `json:"cost"`
				CurrencyCode string `json:"currency_code"`
			} `json:"costProjection"`
		} `json:"primaryImpact"`
	} `json:"recommendations"`
}

func (g *GCPAdapter) ListRecommendations(ctx context.Context) ([]models.ProviderRecommendation, error) {
	var resp gcpRecsResponse
	err := g.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     g.cfg.APIEndpoint + "/v1/billingAccounts/" + g.cfg.AccountID + "/recommendations",
		Headers: g.headers(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	recs := make([]models.ProviderRecommendation, 0, len(resp.Recommendations))
	for _, r := range resp.Recommendations {
		// cost projection is negative for savings
		savings := -r.PrimaryImpact.CostProjection.Cost.Units
		if savings < 0 {
			savings = 0
		}
		recs = append(recs, models.ProviderRecommendation{
			Provider:    "gcp",
			ResourceID:  r.Name,
			Description: r.Description,
			Savings:     savings,
			Currency:    r.PrimaryImpact.CostProjection.CurrencyCode,
		})
	}
	return recs, nil
}

func (g *GCPAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	err := g.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     g.cfg.APIEndpoint + "/v1/billingAccounts/" + g.cfg.AccountID,
		Headers: g.headers(),
	}, nil)
	if err != nil {
		if IsAuth(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *GCPAdapter) headers() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + g.cfg.APIKey,
	}
}
