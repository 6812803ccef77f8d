package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AccessMetrics provides observability for access reconciliation passes.
type AccessMetrics interface {
	// RecordPass records a completed reconciliation pass with its
	// duration and outcome.
	RecordPass(duration time.Duration, err error)

	// RecordUser records one user's reconciliation result.
	RecordUser(granted, revoked int, updated bool)
}

// accessMetrics is the Prometheus implementation of AccessMetrics.
type accessMetrics struct {
	passesTotal       *prometheus.CounterVec
	passDuration      prometheus.Histogram
	permissionChanges *prometheus.CounterVec
	usersUpdated      prometheus.Counter
}

// NewAccessMetrics creates a new Prometheus-backed AccessMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewAccessMetrics() AccessMetrics {
	if !IsEnabled() {
		return noopAccessMetrics{}
	}

	reg := GetRegistry()

	return &accessMetrics{
		passesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "langmirror_access_passes_total",
				Help: "Total number of access reconciliation passes by status",
			},
			[]string{"status"},
		),
		passDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "langmirror_access_pass_duration_seconds",
				Help: "Duration of access reconciliation passes in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.5,  // 500ms
					1.0,  // 1s
					5.0,  // 5s
					30.0, // 30s
				},
			},
		),
		permissionChanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "langmirror_access_permission_changes_total",
				Help: "Total library permission changes by direction",
			},
			[]string{"direction"}, // granted or revoked
		),
		usersUpdated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "langmirror_access_users_updated_total",
				Help: "Total user permission records rewritten",
			},
		),
	}
}

func (m *accessMetrics) RecordPass(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.passesTotal.WithLabelValues(status).Inc()
	m.passDuration.Observe(duration.Seconds())
}

func (m *accessMetrics) RecordUser(granted, revoked int, updated bool) {
	m.permissionChanges.WithLabelValues("granted").Add(float64(granted))
	m.permissionChanges.WithLabelValues("revoked").Add(float64(revoked))
	if updated {
		m.usersUpdated.Inc()
	}
}

// noopAccessMetrics is a no-op implementation of AccessMetrics.
type noopAccessMetrics struct{}

func (noopAccessMetrics) RecordPass(duration time.Duration, err error) {}
func (noopAccessMetrics) RecordUser(granted, revoked int, updated bool) {}
