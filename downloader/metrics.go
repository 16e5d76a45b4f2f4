package downloader

import (
	"context"

	"github.com/habforecast/eo-fetcher/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Listener exporting the outcome of the targets as prometheus metrics
type Metrics struct {
	targetsTotal  *prometheus.CounterVec
	fileSizeBytes *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		targetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eofetcher_targets_total",
				Help: "Processed targets by dataset and status",
			},
			[]string{"dataset", "status"},
		),
		fileSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "eofetcher_file_size_bytes",
				Help: "Size of the transferred files",
				// 1MB to 10GB
				Buckets: prometheus.ExponentialBuckets(1<<20, 10, 5),
			},
			[]string{"dataset"},
		),
	}
	reg.MustRegister(m.targetsTotal, m.fileSizeBytes)
	return m
}

// Name implements Listener
func (m *Metrics) Name() string { return "metrics" }

// Handle implements Listener
func (m *Metrics) Handle(_ context.Context, res common.Result) error {
	m.targetsTotal.WithLabelValues(res.Dataset.String(), res.Status.String()).Inc()
	if res.Status.Transferred() {
		m.fileSizeBytes.WithLabelValues(res.Dataset.String()).Observe(float64(res.Size))
	}
	return nil
}
