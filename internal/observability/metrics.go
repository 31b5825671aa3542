package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., mimir_...).
const namespace = "mimir"

// lowLatencyBuckets resolves sub-millisecond to half-second operations.
// Rule resolution is in-memory, so the default buckets (from 5ms) are too coarse.
var lowLatencyBuckets = []float64{.0001, .0005, .001, .002, .005, .010, .025, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// ENGINE
	// -------------------------------------------------------------------------

	// ResolutionsTotal counts key lookups by where the value came from.
	// Metric: mimir_engine_resolutions_total
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "resolutions_total",
		Help:      "Key lookups by value source (override, rule, default)",
	}, []string{"source"})

	// TypeMismatchesTotal counts rule or default values rejected for their type.
	TypeMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "type_mismatches_total",
		Help:      "Values discarded because they did not match the key type",
	})

	// RecursionLimitsTotal counts resolutions aborted by the depth guard.
	RecursionLimitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "recursion_limits_total",
		Help:      "Resolutions aborted because the nesting limit was exceeded",
	})

	// ResolutionDepth observes how deep lookups nest.
	ResolutionDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "resolution_depth",
		Help:      "Nesting depth of key lookups",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 16, 32, 64},
	})

	// -------------------------------------------------------------------------
	// DATA API (HTTP)
	// -------------------------------------------------------------------------

	// DataAPIReqDuration measures the latency of HTTP requests.
	// Metric: mimir_data_api_http_handling_seconds
	DataAPIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the data API",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "path"})

	// DataAPIReqTotal counts the total number of HTTP requests.
	DataAPIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the data API",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// PROGRAM CACHE (compiled expressions)
	// -------------------------------------------------------------------------

	ProgramCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "program_cache",
		Name:      "hits_total",
		Help:      "Compiled expression cache hits",
	})

	ProgramCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "program_cache",
		Name:      "misses_total",
		Help:      "Compiled expression cache misses",
	})

	// ProgramCacheEvictions tracks entries removed by capacity or TTL.
	ProgramCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "program_cache",
		Name:      "evictions_total",
		Help:      "Compiled expressions evicted by capacity or TTL",
	})

	// ProgramCacheItems reports the number of cached programs (S3-FIFO tracks
	// counts, not bytes).
	ProgramCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "program_cache",
		Name:      "items_count",
		Help:      "Current number of compiled expressions in memory",
	})

	// -------------------------------------------------------------------------
	// SYNCER (document reloads)
	// -------------------------------------------------------------------------

	// SyncerReloadsTotal counts reload attempts by outcome.
	// Metric: mimir_syncer_reloads_total
	SyncerReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "reloads_total",
		Help:      "Document reloads by outcome",
	}, []string{"status"}) // applied, unchanged, failed

	SyncerReloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "reload_duration_seconds",
		Help:      "Time taken to fetch and compile a rule document",
		Buckets:   prometheus.DefBuckets,
	})

	// BundleRules reports the number of rules in the active bundle.
	BundleRules = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "bundle_rules",
		Help:      "Rules held by the active bundle",
	})

	// BundleLoadedTimestamp is the unix time the active bundle was swapped in.
	BundleLoadedTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "bundle_loaded_timestamp_seconds",
		Help:      "Unix time the active bundle was loaded",
	})
)
