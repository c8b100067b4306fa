package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// sync service.
type Metrics struct {
	FetchRequests    *prometheus.CounterVec // labels: source={dispatch,weather,legend}, outcome={primary,fallback,error}
	RecordsProcessed *prometheus.CounterVec // labels: kind={incident,alert}, action={created,updated,skipped,dropped}
	LockSkips        *prometheus.CounterVec // labels: reason={concurrent_fetch_in_progress,rate_limited}
	SyncErrors       *prometheus.CounterVec // labels: kind={agency,tenant,persistence,publish}
	AlertsPosted     prometheus.Counter
	GroupsCreated    prometheus.Counter

	TickDuration     *prometheus.HistogramVec // labels: cadence={fast,medium,daily}
	SchedulerRunning prometheus.Gauge
}

// NewMetrics creates and registers all sync metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.RecordsProcessed,
		m.LockSkips,
		m.SyncErrors,
		m.AlertsPosted,
		m.GroupsCreated,
		m.TickDuration,
		m.SchedulerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanguard",
			Name:      "fetch_requests_total",
			Help:      "Upstream fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanguard",
			Name:      "records_processed_total",
			Help:      "Normalized records by kind and persistence action.",
		}, []string{"kind", "action"}),
		LockSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanguard",
			Name:      "lock_skips_total",
			Help:      "Fetches skipped by the per-tenant rate limiter or lock.",
		}, []string{"reason"}),
		SyncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanguard",
			Name:      "sync_errors_total",
			Help:      "Recorded per-unit sync failures by kind.",
		}, []string{"kind"}),
		AlertsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vanguard",
			Name:      "alerts_posted_total",
			Help:      "Weather alerts auto-published to the social collaborator.",
		}),
		GroupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vanguard",
			Name:      "incident_groups_created_total",
			Help:      "Incident groups created by the dedup engine.",
		}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vanguard",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler tick by cadence.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"cadence"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vanguard",
			Name:      "scheduler_running",
			Help:      "1 when the tick coordinator is active, 0 when shut down.",
		}),
	}
}
