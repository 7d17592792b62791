package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	recordsFetched *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	qualityScore   *prometheus.GaugeVec
	openAnomalies  *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		recordsFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costpull_records_fetched_total",
				Help: "Total cost records fetched per provider",
			},
			[]string{"provider"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "costpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "costpull_collection_run_seconds",
				Help:    "Duration of collection runs per provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		qualityScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "costpull_quality_score",
				Help: "Latest overall quality score per provider",
			},
			[]string{"provider"},
		),
		openAnomalies: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "costpull_open_anomalies",
				Help: "Open anomalies per provider",
			},
			[]string{"provider"},
		),
	}
}

// RecordFetched records cost records fetched from a provider.
func (r *Recorder) RecordFetched(provider string, count int) {
	r.recordsFetched.WithLabelValues(provider).Add(float64(count))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRunDuration records a collection run duration in seconds.
func (r *Recorder) RecordRunDuration(provider string, seconds float64) {
	r.runDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordQuality records the latest overall quality score.
func (r *Recorder) RecordQuality(provider string, overall float64) {
	r.qualityScore.WithLabelValues(provider).Set(overall)
}

// RecordOpenAnomalies records the open anomaly count.
func (r *Recorder) RecordOpenAnomalies(provider string, count int) {
	r.openAnomalies.WithLabelValues(provider).Set(float64(count))
}
