package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics provides observability for mirror sync passes.
//
// This interface is optional - components receiving nil or a no-op
// implementation skip metrics collection with zero overhead.
type SyncMetrics interface {
	// RecordPass records a completed mirror sync pass with its duration
	// and outcome.
	RecordPass(duration time.Duration, err error)

	// RecordMirrors records the per-pass mirror activity counters.
	RecordMirrors(created, updated, removed, stale, errors int)
}

// syncMetrics is the Prometheus implementation of SyncMetrics.
type syncMetrics struct {
	passesTotal  *prometheus.CounterVec
	passDuration prometheus.Histogram
	mirrorsTotal *prometheus.CounterVec
	mirrorErrors prometheus.Counter
}

// NewSyncMetrics creates a new Prometheus-backed SyncMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewSyncMetrics() SyncMetrics {
	if !IsEnabled() {
		return noopSyncMetrics{}
	}

	reg := GetRegistry()

	return &syncMetrics{
		passesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "langmirror_sync_passes_total",
				Help: "Total number of mirror sync passes by status",
			},
			[]string{"status"},
		),
		passDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "langmirror_sync_pass_duration_seconds",
				Help: "Duration of mirror sync passes in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.5,  // 500ms
					1.0,  // 1s
					5.0,  // 5s
					30.0, // 30s
					60.0, // 1m
				},
			},
		),
		mirrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "langmirror_sync_mirrors_total",
				Help: "Total mirror transitions by action",
			},
			[]string{"action"}, // created, updated, removed, stale
		),
		mirrorErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "langmirror_sync_mirror_errors_total",
				Help: "Total per-mirror failures across sync passes",
			},
		),
	}
}

func (m *syncMetrics) RecordPass(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.passesTotal.WithLabelValues(status).Inc()
	m.passDuration.Observe(duration.Seconds())
}

func (m *syncMetrics) RecordMirrors(created, updated, removed, stale, errors int) {
	m.mirrorsTotal.WithLabelValues("created").Add(float64(created))
	m.mirrorsTotal.WithLabelValues("updated").Add(float64(updated))
	m.mirrorsTotal.WithLabelValues("removed").Add(float64(removed))
	m.mirrorsTotal.WithLabelValues("stale").Add(float64(stale))
	m.mirrorErrors.Add(float64(errors))
}

// noopSyncMetrics is a no-op implementation of SyncMetrics.
type noopSyncMetrics struct{}

func (noopSyncMetrics) RecordPass(duration time.Duration, err error)             {}
func (noopSyncMetrics) RecordMirrors(created, updated, removed, stale, errs int) {}
