package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., heimdall_...).
const namespace = "heimdall"

// lowLatencyBuckets covers in-process evaluation, which runs in microseconds.
// Range: 10µs to 50ms.
var lowLatencyBuckets = []float64{.00001, .000025, .00005, .0001, .00025, .0005, .001, .0025, .005, .010, .050}

var (
	// -------------------------------------------------------------------------
	// SDK (Evaluation)
	// -------------------------------------------------------------------------

	// EvaluationsTotal counts evaluations by the reason they resolved with.
	// Metric: heimdall_sdk_evaluations_total
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "evaluations_total",
		Help:      "Total flag evaluations by reason",
	}, []string{"reason"})

	// EvaluationDuration measures the latency of a single flag evaluation.
	// Metric: heimdall_sdk_evaluation_duration_seconds
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "evaluation_duration_seconds",
		Help:      "Time taken to evaluate a flag",
		Buckets:   lowLatencyBuckets,
	})

	// --- Evaluation Cache Metrics (Otter) ---

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "cache_hits_total",
		Help:      "Total evaluation cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "cache_misses_total",
		Help:      "Total evaluation cache misses",
	})

	// CacheInvalidations counts full invalidations (context change, snapshot refresh, manual).
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "cache_invalidations_total",
		Help:      "Total evaluation cache invalidations",
	})

	// CacheEvictions tracks items removed due to the capacity limit.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "cache_evictions_total",
		Help:      "Total items evicted due to capacity pressure",
	})

	CacheUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "cache_items_count",
		Help:      "Current number of items in the evaluation cache",
	})

	// -------------------------------------------------------------------------
	// SNAPSHOTS (Syncer)
	// -------------------------------------------------------------------------

	// SnapshotRefreshTotal counts refresh attempts.
	// Metric: heimdall_sdk_snapshot_refresh_total
	SnapshotRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "snapshot_refresh_total",
		Help:      "Total snapshot refresh attempts",
	}, []string{"status"}) // updated, unchanged, rejected, failed

	// SnapshotAge reports how old the active snapshot is, in seconds.
	SnapshotAge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sdk",
		Name:      "snapshot_age_seconds",
		Help:      "Age of the active flag snapshot",
	})

	// -------------------------------------------------------------------------
	// EVALUATION API (HTTP)
	// -------------------------------------------------------------------------

	// APIReqDuration measures the latency of HTTP requests.
	// Metric: heimdall_eval_api_http_handling_seconds
	APIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "eval_api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the evaluation API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// APIReqTotal counts the total number of HTTP requests.
	// Metric: heimdall_eval_api_http_requests_total
	APIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eval_api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the evaluation API",
	}, []string{"method", "route", "code"})
)
