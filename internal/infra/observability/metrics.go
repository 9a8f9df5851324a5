package observability

import (
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Rollover outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	rolloverDuration  prometheus.Histogram
	rollovers         *prometheus.CounterVec
	milestonesAwarded *prometheus.CounterVec
	schedulerRuns     prometheus.Counter
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		rolloverDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_rollover_duration_seconds",
				Help:    "Duration of a single user's monthly rollover.",
				Buckets: prometheus.DefBuckets,
			},
		),
		rollovers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_rollovers_total",
				Help: "Monthly rollovers by outcome.",
			},
			[]string{"outcome"},
		),
		milestonesAwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_milestones_awarded_total",
				Help: "Milestones unlocked, by type.",
			},
			[]string{"type"},
		),
		schedulerRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_scheduler_runs_total",
				Help: "Monthly batch runs started by the scheduler or an operator.",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_store_errors_total",
				Help: "Errors returned by the user store.",
			},
			[]string{"op"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRollover counts one rollover outcome and observes its duration.
func (m *Metrics) RecordRollover(outcome string, d time.Duration) {
	m.rollovers.WithLabelValues(outcome).Inc()
	m.rolloverDuration.Observe(d.Seconds())
}

// IncrMilestone counts an unlocked milestone.
func (m *Metrics) IncrMilestone(t domain.MilestoneType) {
	m.milestonesAwarded.WithLabelValues(string(t)).Inc()
}

// IncrSchedulerRun counts a batch run.
func (m *Metrics) IncrSchedulerRun() {
	m.schedulerRuns.Inc()
}

// IncrStoreError counts a failed store operation.
func (m *Metrics) IncrStoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RolloverSnapshot reads the cumulative rollover counters for the
// GET /v1/admin/rollover/stats endpoint.
func (m *Metrics) RolloverSnapshot() *domain.RolloverStats {
	var awarded float64
	for _, t := range domain.SavingsThresholds {
		awarded += counterValue(m.milestonesAwarded.WithLabelValues(string(t.Type)))
	}
	for _, t := range domain.StreakThresholds {
		awarded += counterValue(m.milestonesAwarded.WithLabelValues(string(t.Type)))
	}

	return &domain.RolloverStats{
		Succeeded:         int64(counterValue(m.rollovers.WithLabelValues(OutcomeSuccess))),
		Skipped:           int64(counterValue(m.rollovers.WithLabelValues(OutcomeSkipped))),
		Failed:            int64(counterValue(m.rollovers.WithLabelValues(OutcomeFailed))),
		MilestonesAwarded: int64(awarded),
		SchedulerRuns:     int64(counterValue(m.schedulerRuns)),
		Period:            "since_start",
	}
}

// counterValue extracts the current float64 value of a counter.
func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
