package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sandbox_router"

// Refresh results
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

// Task outcomes
const (
	TaskSucceeded    = "succeeded"
	TaskFailed       = "failed"
	TaskRetried      = "retried"
	TaskDeadLettered = "dead_lettered"
	TaskSkipped      = "skipped"
)

// Collector holds every metric exported by the worker.
//
// Metrics:
//   - sandbox_router_gate_decisions_total: routing decisions by role, action and reason
//   - sandbox_router_rules_refresh_total: rules fetches by result
//   - sandbox_router_rules_refresh_duration_seconds: rules fetch latency
//   - sandbox_router_rules_generation: successful refreshes since start
//   - sandbox_router_rules_active_keys: size of the active key set
//   - sandbox_router_rules_last_success_timestamp_seconds: time of the last successful fetch
//   - sandbox_router_tasks_total: processed tasks by type and outcome
type Collector struct {
	registry *prometheus.Registry

	decisionsTotal   *prometheus.CounterVec
	refreshTotal     *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	generation       prometheus.Gauge
	activeKeys       prometheus.Gauge
	lastRefreshEpoch prometheus.Gauge
	tasksTotal       *prometheus.CounterVec
}

// New creates a collector and registers its metrics with registry.
// A nil registry gets a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Total number of routing decisions",
			},
			[]string{"role", "action", "reason"},
		),

		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "refresh_total",
				Help:      "Total number of routing rules fetches",
			},
			[]string{"result"},
		),

		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "refresh_duration_seconds",
				Help:      "Duration of routing rules fetches in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		generation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "generation",
				Help:      "Number of successful routing rules refreshes",
			},
		),

		activeKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "active_keys",
				Help:      "Number of routing keys in the active set",
			},
		),

		lastRefreshEpoch: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful routing rules fetch",
			},
		),

		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of dispatched tasks by outcome",
			},
			[]string{"type", "outcome"},
		),
	}

	registry.MustRegister(
		c.decisionsTotal,
		c.refreshTotal,
		c.refreshDuration,
		c.generation,
		c.activeKeys,
		c.lastRefreshEpoch,
		c.tasksTotal,
	)

	return c
}

// ObserveDecision counts one routing decision.
func (c *Collector) ObserveDecision(role, action, reason string) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(role, action, reason).Inc()
}

// ObserveRefresh records a rules fetch attempt.
func (c *Collector) ObserveRefresh(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.refreshTotal.WithLabelValues(result).Inc()
	c.refreshDuration.Observe(duration.Seconds())
}

// SetRulesSnapshot publishes the state of the latest successful refresh.
func (c *Collector) SetRulesSnapshot(generation uint64, keys int, fetchedAt time.Time) {
	if c == nil {
		return
	}
	c.generation.Set(float64(generation))
	c.activeKeys.Set(float64(keys))
	c.lastRefreshEpoch.Set(float64(fetchedAt.UnixNano()) / 1e9)
}

// ObserveTask counts one task outcome.
func (c *Collector) ObserveTask(taskType, outcome string) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(taskType, outcome).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns the /metrics handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
