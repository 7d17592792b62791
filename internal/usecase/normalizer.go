package usecase

import (
	"sort"
	"strings"

	"CostPull/internal/domain/models"
	"CostPull/pkg/util"
)

const (
	defaultRegion   = "unknown"
	defaultCurrency = "USD"
	defaultUnit     = "unit"
)

// Normalizer converts provider-shaped raw usage into canonical cost records.
// It is stateless; all methods are safe for concurrent use.
type Normalizer struct{}

func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize maps raw usage items into CostRecords, dropping items that lack
// the fields needed to form a natural key. Duplicate natural keys collapse
// last-wins, and the result is sorted by key so batches are deterministic.
func (n *Normalizer) Normalize(provider string, items []models.RawUsage) ([]models.CostRecord, int) {
	byKey := make(map[string]models.CostRecord, len(items))
	skipped := 0

	for _, item := range items {
		rec, ok := n.normalizeOne(provider, item)
		if !ok {
			skipped++
			continue
		}
		byKey[rec.NaturalKey()] = rec
	}

	records := make([]models.CostRecord, 0, len(byKey))
	for _, rec := range byKey {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].NaturalKey() < records[j].NaturalKey()
	})
	return records, skipped
}

func (n *Normalizer) normalizeOne(provider string, item models.RawUsage) (models.CostRecord, bool) {
	service := strings.TrimSpace(item.Service)
	resource := strings.TrimSpace(item.ResourceID)
	if service == "" || item.UsageDate.IsZero() {
		return models.CostRecord{}, false
	}
	if resource == "" {
		resource = service
	}

	region := strings.TrimSpace(item.Region)
	if region == "" {
		region = defaultRegion
	}
	currency := strings.ToUpper(strings.TrimSpace(item.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	unit := strings.TrimSpace(item.UsageUnit)
	if unit == "" {
		unit = defaultUnit
	}

	usageDate := util.DayOf(item.UsageDate)

	tags := item.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	return models.CostRecord{
		Provider:      provider,
		AccountID:     item.AccountID,
		Service:       service,
		ResourceID:    resource,
		Cost:          item.Cost,
		Currency:      currency,
		UsageDate:     usageDate,
		UsageQuantity: item.UsageQuantity,
		UsageUnit:     unit,
		Region:        region,
		Tags:          tags,
		BillingPeriod: usageDate.Format("2006-01"),
	}, true
}
