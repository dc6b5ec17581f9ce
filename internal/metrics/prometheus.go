// Package metrics exports the result of a backup run in Prometheus format.
//
// walship exits after one run, so metrics are written to a node_exporter
// textfile collector file rather than served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walship"

// Run statuses.
const (
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusUndelivered = "undelivered"
)

var statuses = []string{StatusCompleted, StatusFailed, StatusUndelivered}

// Run is the summary of one backup run.
type Run struct {
	Variant     string
	Status      string
	Duration    time.Duration
	SourceBytes uint64
	ResultBytes uint64
	BytesSent   int
	FinishedAt  time.Time
}

// PrometheusMetrics holds the gauges describing the last run.
type PrometheusMetrics struct {
	LastRunGauge  *prometheus.GaugeVec
	StatusGauge   *prometheus.GaugeVec
	DurationGauge *prometheus.GaugeVec
	SizeGauge     *prometheus.GaugeVec
	SentGauge     *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewPrometheusMetrics creates and registers the run metrics on reg.
func NewPrometheusMetrics(reg *prometheus.Registry) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		LastRunGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last backup run finished.",
		}, []string{"variant"}),
		StatusGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_status",
			Help:      "1 for the status of the last backup run, 0 for the others.",
		}, []string{"variant", "status"}),
		DurationGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall clock duration of the last backup run.",
		}, []string{"variant"}),
		SizeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_bytes",
			Help:      "Source and result size of the last backup run.",
		}, []string{"variant", "kind"}),
		SentGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_bytes_sent",
			Help:      "Bytes of the status record delivered to the collector.",
		}, []string{"variant"}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.LastRunGauge, m.StatusGauge, m.DurationGauge, m.SizeGauge, m.SentGauge} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// RecordRun sets every gauge from r.
func (m *PrometheusMetrics) RecordRun(r Run) {
	m.LastRunGauge.WithLabelValues(r.Variant).Set(float64(r.FinishedAt.Unix()))
	for _, s := range statuses {
		v := 0.0
		if s == r.Status {
			v = 1
		}
		m.StatusGauge.WithLabelValues(r.Variant, s).Set(v)
	}
	m.DurationGauge.WithLabelValues(r.Variant).Set(r.Duration.Seconds())
	m.SizeGauge.WithLabelValues(r.Variant, "source").Set(float64(r.SourceBytes))
	m.SizeGauge.WithLabelValues(r.Variant, "result").Set(float64(r.ResultBytes))
	m.SentGauge.WithLabelValues(r.Variant).Set(float64(r.BytesSent))
}

// WriteTextfile atomically writes all registered metrics to path.
func (m *PrometheusMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
