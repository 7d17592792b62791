package anomaly

import (
	"context"
	"testing"
	"time"

	"CostPull/internal/domain/models"
)

type memAnomalyStore struct {
	anomalies []models.Anomaly
}

func (m *memAnomalyStore) Init(ctx context.Context) error { return nil }
func (m *memAnomalyStore) Insert(ctx context.Context, a models.Anomaly) error {
	m.anomalies = append(m.anomalies, a)
	return nil
}
func (m *memAnomalyStore) Open(ctx context.Context, provider string) ([]models.Anomaly, error) {
	var out []models.Anomaly
	for _, a := range m.anomalies {
		if a.Provider == provider && a.Status == models.AnomalyOpen {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *memAnomalyStore) Query(ctx context.Context, provider, severity string, since time.Time) ([]models.Anomaly, error) {
	return m.anomalies, nil
}
func (m *memAnomalyStore) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordFetched(provider string, count int)           {}
func (nopMetrics) RecordError(kind string)                            {}
func (nopMetrics) RecordRunDuration(provider string, seconds float64) {}
func (nopMetrics) RecordQuality(provider string, overall float64)     {}
func (nopMetrics) RecordOpenAnomalies(provider string, count int)     {}

// noisySeries builds n days around base with mild deterministic wobble so the
// series has nonzero variance.
func noisySeries(n int, base float64) []models.DailyPoint {
	points := make([]models.DailyPoint, 0, n)
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		wobble := float64(i%5) - 2
		points = append(points, models.DailyPoint{
			Date:     start.AddDate(0, 0, i),
			Cost:     base + wobble,
			Quantity: (base + wobble) * 2,
		})
	}
	return points
}

func newTestDetector(store *memAnomalyStore) *Detector {
	return NewDetector(store, nopMetrics{}, 2.5, 3, 50)
}

func TestDetector_FlagsLargeSpikeAsCritical(t *testing.T) {
	store := &memAnomalyStore{}
	d := newTestDetector(store)
	history := noisySeries(30, 100)
	spike := models.DailyPoint{Date: time.Now().UTC().Truncate(24 * time.Hour), Cost: 500, Quantity: 10}

	found, err := d.Detect(context.Background(), "aws", "ec2", history, spike)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("len(found) = %d, want 1", len(found))
	}
	a := found[0]
	if a.Severity != models.SeverityCritical {
		t.Errorf("Severity = %q, want %q", a.Severity, models.SeverityCritical)
	}
	if a.Method != "zscore" {
		t.Errorf("Method = %q, want %q (small samples use the z-score path)", a.Method, "zscore")
	}
	if a.Status != models.AnomalyOpen {
		t.Errorf("Status = %q, want %q", a.Status, models.AnomalyOpen)
	}
	if a.Actual != 500 {
		t.Errorf("Actual = %v, want 500", a.Actual)
	}
	if len(store.anomalies) != 1 {
		t.Errorf("store holds %d anomalies, want 1", len(store.anomalies))
	}
}

func TestDetector_IgnoresMildDeviation(t *testing.T) {
	d := newTestDetector(&memAnomalyStore{})
	history := noisySeries(30, 100)
	mild := models.DailyPoint{Date: time.Now().UTC().Truncate(24 * time.Hour), Cost: 101, Quantity: 202}

	found, err := d.Detect(context.Background(), "aws", "ec2", history, mild)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("len(found) = %d, want 0", len(found))
	}
}

func TestDetector_SkipsShortOrFlatHistory(t *testing.T) {
	d := newTestDetector(&memAnomalyStore{})
	spike := models.DailyPoint{Date: time.Now().UTC(), Cost: 500}

	found, err := d.Detect(context.Background(), "aws", "ec2", noisySeries(2, 100), spike)
	if err != nil || len(found) != 0 {
		t.Errorf("short history: found=%d err=%v, want none", len(found), err)
	}

	flat := make([]models.DailyPoint, 10)
	for i := range flat {
		flat[i] = models.DailyPoint{Date: time.Now().UTC().AddDate(0, 0, -10+i), Cost: 100}
	}
	found, err = d.Detect(context.Background(), "aws", "ec2", flat, spike)
	if err != nil || len(found) != 0 {
		t.Errorf("zero variance: found=%d err=%v, want none", len(found), err)
	}
}

func TestDetector_SuppressesOpenDayBucket(t *testing.T) {
	store := &memAnomalyStore{}
	d := newTestDetector(store)
	history := noisySeries(30, 100)
	spikeDay := time.Now().UTC().Truncate(24 * time.Hour)
	spike := models.DailyPoint{Date: spikeDay, Cost: 500}

	first, err := d.Detect(context.Background(), "aws", "ec2", history, spike)
	if err != nil || len(first) != 1 {
		t.Fatalf("first pass: found=%d err=%v, want 1", len(first), err)
	}

	// Same day again, e.g. the next collection cycle re-reading the window.
	second, err := d.Detect(context.Background(), "aws", "ec2", history, spike)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second pass found %d, want 0 (one open anomaly per day bucket)", len(second))
	}
	if len(store.anomalies) != 1 {
		t.Errorf("store holds %d anomalies, want 1", len(store.anomalies))
	}
}

func TestDetector_MultivariatePathFlagsJointOutlier(t *testing.T) {
	store := &memAnomalyStore{}
	d := newTestDetector(store)
	history := noisySeries(60, 100) // at the multivariate sample floor
	outlier := models.DailyPoint{
		Date:     time.Now().UTC().Truncate(24 * time.Hour),
		Cost:     1000,
		Quantity: 5, // high cost at low usage, far from the (cost, quantity) cluster
	}

	found, err := d.Detect(context.Background(), "gcp", "bigquery", history, outlier)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("len(found) = %d, want 1", len(found))
	}
	if found[0].Method != "outlier_forest" {
		t.Errorf("Method = %q, want %q", found[0].Method, "outlier_forest")
	}

	inlier := models.DailyPoint{Date: time.Now().UTC().AddDate(0, 0, 1), Cost: 100, Quantity: 200}
	found, err = d.Detect(context.Background(), "gcp", "bigquery", history, inlier)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("inlier flagged with score %v, want none", found)
	}
}
