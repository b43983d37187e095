package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search pipeline metrics, exported on /metrics in serve mode.
var (
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rx",
		Name:      "search_duration_seconds",
		Help:      "End to end duration of one search request.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	ChunksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "chunks_dispatched_total",
		Help:      "Search subprocesses launched.",
	})

	ChunkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "chunk_errors_total",
		Help:      "Chunk subprocesses that failed.",
	})

	IndexBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rx",
		Name:      "index_build_duration_seconds",
		Help:      "Time to build a line offset index.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	TraceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "trace_cache_hits_total",
		Help:      "Searches answered from the trace cache.",
	})

	TraceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "trace_cache_misses_total",
		Help:      "Searches that had to scan.",
	})

	TraceCacheWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "trace_cache_writes_total",
		Help:      "Complete scans persisted to the trace cache.",
	})

	FilesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "files_skipped_total",
		Help:      "Files skipped before search, by reason.",
	}, []string{"reason"})

	HookCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rx",
		Name:      "hook_calls_total",
		Help:      "Webhook notifications fired, by event.",
	}, []string{"event"})
)
