// Package metrics provides Prometheus metrics for the pulse pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus collectors for the weekly-run pipeline.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Run lifecycle
	runsCompleted     prometheus.Counter
	runsUnchanged     prometheus.Counter
	runsFailed        prometheus.Counter
	lockContention    prometheus.Counter
	staleLockReclaims prometheus.Counter
	runDuration       prometheus.Histogram

	// Privacy and quality gates
	privacyGateSkips prometheus.Counter
	employeeSkips    prometheus.Counter

	// Inference
	inferenceUpdates prometheus.Counter
	inferenceSkips   prometheus.Counter

	// Aggregation
	participantsPerRun prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Init creates and registers the global metrics manager.
func Init(opts ...Option) *Manager {
	m := &Manager{
		namespace: "pulse",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)

	m.runsCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "runs", Name: "completed_total",
		Help: "Weekly runs that computed and stored a fresh aggregate.",
	})
	m.runsUnchanged = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "runs", Name: "unchanged_total",
		Help: "Weekly runs short-circuited by an unchanged input fingerprint.",
	})
	m.runsFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "runs", Name: "failed_total",
		Help: "Weekly runs that failed mid-pipeline, leaving their lock for reclaim.",
	})
	m.lockContention = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "locks", Name: "contention_total",
		Help: "Run attempts declined because the weekly lock was already held.",
	})
	m.staleLockReclaims = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "locks", Name: "stale_reclaims_total",
		Help: "Locks explicitly reclaimed after the staleness window.",
	})
	m.runDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "runs", Name: "duration_seconds",
		Help:    "Wall-clock duration of one weekly run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	m.privacyGateSkips = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "aggregation", Name: "privacy_gate_skips_total",
		Help: "Aggregations skipped because participants were below the k threshold.",
	})
	m.employeeSkips = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "aggregation", Name: "employee_skips_total",
		Help: "Employee profiles excluded from aggregation as malformed.",
	})
	m.inferenceUpdates = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "inference", Name: "updates_total",
		Help: "Latent-state updates applied.",
	})
	m.inferenceSkips = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "inference", Name: "skips_total",
		Help: "Observations skipped as nonsense-flagged.",
	})
	m.participantsPerRun = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "aggregation", Name: "participants",
		Help:    "Contributing employees per stored aggregate.",
		Buckets: prometheus.LinearBuckets(5, 5, 10),
	})

	globalManager = m
	return m
}

// Package-level helpers. All are safe no-ops before Init so domain code never
// needs a nil check.

func IncRunsCompleted() {
	if globalManager != nil {
		globalManager.runsCompleted.Inc()
	}
}

func IncRunsUnchanged() {
	if globalManager != nil {
		globalManager.runsUnchanged.Inc()
	}
}

func IncRunsFailed() {
	if globalManager != nil {
		globalManager.runsFailed.Inc()
	}
}

func IncLockContention() {
	if globalManager != nil {
		globalManager.lockContention.Inc()
	}
}

func AddStaleLockReclaims(n int) {
	if globalManager != nil {
		globalManager.staleLockReclaims.Add(float64(n))
	}
}

func ObserveRunDuration(d time.Duration) {
	if globalManager != nil {
		globalManager.runDuration.Observe(d.Seconds())
	}
}

func IncPrivacyGateSkips() {
	if globalManager != nil {
		globalManager.privacyGateSkips.Inc()
	}
}

func IncEmployeeSkips() {
	if globalManager != nil {
		globalManager.employeeSkips.Inc()
	}
}

func AddInferenceUpdates(n int) {
	if globalManager != nil {
		globalManager.inferenceUpdates.Add(float64(n))
	}
}

func IncInferenceSkips() {
	if globalManager != nil {
		globalManager.inferenceSkips.Inc()
	}
}

func ObserveParticipants(n int) {
	if globalManager != nil {
		globalManager.participantsPerRun.Observe(float64(n))
	}
}
