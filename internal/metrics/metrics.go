// Package metrics holds the Prometheus collectors for detection runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "result" label.
const (
	ResultSuccess     = "success"
	ResultFetchError  = "fetch_error"
	ResultDetectError = "detect_error"
	ResultPublishFail = "publish_error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	Runs            *prometheus.CounterVec
	Changed         prometheus.Counter
	Skipped         prometheus.Counter
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	LastRun         prometheus.Gauge
	LastSuccess     prometheus.Gauge
	RunDuration     prometheus.Histogram
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "baselinewatch_runs_total",
			Help: "Detection runs by result",
		}, []string{"result"}),
		Changed: f.NewCounter(prometheus.CounterOpts{
			Name: "baselinewatch_features_changed_total",
			Help: "Features detected as new or changed",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "baselinewatch_features_skipped_total",
			Help: "Features skipped because they could not be fingerprinted",
		}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "baselinewatch_posts_published_total",
			Help: "Posts delivered",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "baselinewatch_posts_failed_total",
			Help: "Posts that failed after their change was recorded",
		}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "baselinewatch_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "baselinewatch_last_success_timestamp_seconds",
			Help: "Unix time the last fully successful run finished",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "baselinewatch_run_duration_seconds",
			Help:    "Duration of detection runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// RunStats is what ObserveRun needs from a finished run.
type RunStats struct {
	Changed   int
	Skipped   int
	Published int
	Failed    int
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(result string, stats RunStats, finished time.Time, took time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(result).Inc()
	m.Changed.Add(float64(stats.Changed))
	m.Skipped.Add(float64(stats.Skipped))
	m.Published.Add(float64(stats.Published))
	m.PublishFailures.Add(float64(stats.Failed))
	m.LastRun.Set(float64(finished.Unix()))
	if result == ResultSuccess {
		m.LastSuccess.Set(float64(finished.Unix()))
	}
	m.RunDuration.Observe(took.Seconds())
}
