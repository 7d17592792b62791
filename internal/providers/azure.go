package providers

import (
	"context"
	"strconv"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
)

// AzureAdapter pulls usage detail rows from a Cost Management style query
// API. Azure returns columnar rows; column order is fixed by the request.
type AzureAdapter struct {
	apiBase
}

func NewAzureAdapter(cfg config.ProviderConfig, retry *RetryPolicy, limiter *Limiter) *AzureAdapter {
	return &AzureAdapter{apiBase: newAPIBase("azure", cfg, retry, limiter)}
}

func (a *AzureAdapter) Name() string { return "azure" }

type azureQueryRequest struct {
	Type       string          `json:"type"`
	Timeframe  string          `json:"timeframe"`
	TimePeriod azureTimePeriod `json:"timePeriod"`
	Dataset    azureDataset    `json:"dataset"`
}

type azureTimePeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type azureDataset struct {
	Granularity string   `json:"granularity"`
	Grouping    []string `json:"grouping"`
}

// row columns: [date, serviceName, resourceId, region, cost, quantity, unit, currency]
type azureQueryResponse struct {
	Properties struct {
		Rows [][]interface{} `json:"rows"`
	} `json:"properties"`
}

func (a *AzureAdapter) FetchCostData(ctx context.Context, window models.Window) ([]models.RawUsage, error) {
	req := azureQueryRequest{
		Type:      "ActualCost",
		Timeframe: "Custom",
		TimePeriod: azureTimePeriod{
			From: window.Start.UTC().Format(time.RFC3339),
			To:   window.End.UTC().Format(time.RFC3339),
		},
		Dataset: azureDataset{
			Granularity: "Daily",
			Grouping:    []string{"ServiceName", "ResourceId", "ResourceLocation"},
		},
	}

	var resp azureQueryResponse
	err := a.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     a.cfg.APIEndpoint + "/providers/Microsoft.CostManagement/query",
		Headers: a.headers(),
		Body:    req,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]models.RawUsage, 0, len(resp.Properties.Rows))
	for _, row := range resp.Properties.Rows {
		usage, ok := a.parseRow(row)
		if !ok {
			continue // malformed row, skip it and keep the batch
		}
		out = append(out, usage)
	}
	return out, nil
}

func (a *AzureAdapter) parseRow(row []interface{}) (models.RawUsage, bool) {
	if len(row) < 8 {
		return models.RawUsage{}, false
	}
	dateStr, ok := row[0].(string)
	if !ok {
		return models.RawUsage{}, false
	}
	day, err := time.Parse("20060102", dateStr)
	if err != nil {
		if day, err = time.Parse("2006-01-02", dateStr); err != nil {
			return models.RawUsage{}, false
		}
	}
	service, _ := row[1].(string)
	resource, _ := row[2].(string)
	region, _ := row[3].(string)
	cost, ok := toFloat(row[4])
	if !ok {
		return models.RawUsage{}, false
	}
	qty, _ := toFloat(row[5])
	unit, _ := row[6].(string)
	currency, _ := row[7].(string)

	return models.RawUsage{
		AccountID:     a.cfg.AccountID,
		Service:       service,
		ResourceID:    resource,
		Cost:          cost,
		Currency:      currency,
		UsageDate:     day,
		UsageQuantity: qty,
		UsageUnit:     unit,
		Region:        region,
	}, true
}

type azureAdvisorResponse struct {
	Value []struct {
		Properties struct {
			ImpactedValue    string `json:"impactedValue"`
			ShortDescription struct {
				Problem string `json:"problem"`
			} `json:"shortDescription"`
			ExtendedProperties map[string]string `json:"extendedProperties"`
		} `json:"properties"`
	} `json:"value"`
}

func (a *AzureAdapter) ListRecommendations(ctx context.Context) ([]models.ProviderRecommendation, error) {
	var resp azureAdvisorResponse
	err := a.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     a.cfg.APIEndpoint + "/providers/Microsoft.Advisor/recommendations",
		Headers: a.headers(),
		QueryParams: map[string][]string{
			"$filter": {"Category eq 'Cost'"},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	recs := make([]models.ProviderRecommendation, 0, len(resp.Value))
	for _, v := range resp.Value {
		savings, _ := strconv.ParseFloat(v.Properties.ExtendedProperties["annualSavingsAmount"], 64)
		recs = append(recs, models.ProviderRecommendation{
			Provider:    "azure",
			ResourceID:  v.Properties.ImpactedValue,
			Description: v.Properties.ShortDescription.Problem,
			Savings:     savings / 12,
			Currency:    v.Properties.ExtendedProperties["savingsCurrency"],
		})
	}
	return recs, nil
}

func (a *AzureAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	err := a.call(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     a.cfg.APIEndpoint + "/providers/Microsoft.CostManagement/dimensions",
		Headers: a.headers(),
	}, nil)
	if err != nil {
		if IsAuth(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *AzureAdapter) headers() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + a.cfg.APIKey,
	}
}
