// Package metrics exposes Prometheus instrumentation for versioning, restores
// and the HTTP API. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Restore outcomes.
const (
	RestoreOK      = "ok"
	RestorePartial = "partial"
	RestoreFailed  = "failed"
)

type Metrics struct {
	VersionsCreated prometheus.Counter
	VersionsDeleted prometheus.Counter
	Restores        *prometheus.CounterVec
	DiffEntries     prometheus.Histogram
	StoreDuration   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VersionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "venture_versions_created_total",
			Help: "Total number of plan versions created",
		}),
		VersionsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "venture_versions_deleted_total",
			Help: "Total number of plan versions deleted",
		}),
		Restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_restores_total",
			Help: "Restore attempts by outcome",
		}, []string{"outcome"}),
		DiffEntries: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "venture_diff_entries",
			Help:    "Number of entries produced per comparison",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venture_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) VersionCreated() {
	if m == nil {
		return
	}
	m.VersionsCreated.Inc()
}

func (m *Metrics) VersionDeleted() {
	if m == nil {
		return
	}
	m.VersionsDeleted.Inc()
}

func (m *Metrics) Restore(outcome string) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDiff(entries int) {
	if m == nil {
		return
	}
	m.DiffEntries.Observe(float64(entries))
}

// ObserveStore records the time since start under operation.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
