// Package metrics exposes the Prometheus collectors shared across the
// engine's components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Total RPC requests issued, by method.",
	}, []string{"method"})

	rpcRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "Total RPC retries, by method.",
	}, []string{"method"})

	rpcErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Subsystem: "rpc",
		Name:      "errors_total",
		Help:      "Total RPC requests that failed after exhausting retries, by method.",
	}, []string{"method"})

	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ponder",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "RPC request latency, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// LastIndexedBlock tracks the most recently synced block per chain.
	LastIndexedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ponder",
		Name:      "last_indexed_block",
		Help:      "Highest block number synced, by chain ID.",
	}, []string{"chain_id"})

	// BlocksProcessed counts blocks synced, by chain and sync mode.
	BlocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Name:      "blocks_processed_total",
		Help:      "Total blocks processed, by chain ID and sync mode.",
	}, []string{"chain_id", "mode"})

	// LogsIndexed counts raw logs persisted to the sync store.
	LogsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Name:      "logs_indexed_total",
		Help:      "Total logs written to the sync store, by chain ID.",
	}, []string{"chain_id"})

	// ReorgsDetected counts chain reorganizations handled per chain.
	ReorgsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Name:      "reorgs_detected_total",
		Help:      "Total reorganizations detected, by chain ID.",
	}, []string{"chain_id"})

	// HandlerDuration tracks user handler execution time per event.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ponder",
		Name:      "handler_duration_seconds",
		Help:      "Handler execution latency, by event name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event"})

	// HandlerErrors counts handler invocations that returned an error.
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ponder",
		Name:      "handler_errors_total",
		Help:      "Total handler invocations that returned an error, by event name.",
	}, []string{"event"})

	// SyncLag reports the gap between chain head and synced checkpoint, in blocks.
	SyncLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ponder",
		Name:      "sync_lag_blocks",
		Help:      "Blocks between chain head and last synced block, by chain ID.",
	}, []string{"chain_id"})

	// NamespaceLockHeld reports whether this process currently holds the
	// namespace lease (1) or not (0).
	NamespaceLockHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ponder",
		Name:      "namespace_lock_held",
		Help:      "1 if this process holds the namespace lease, 0 otherwise.",
	})

	// HistoricalSyncMinUncachedBlock tracks the lowest block number still
	// outside the cached interval set, by chain ID.
	HistoricalSyncMinUncachedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ponder",
		Subsystem: "historical_sync",
		Name:      "min_uncached_block",
		Help:      "Lowest block number not yet covered by a cached interval, by chain ID.",
	}, []string{"chain_id"})

	// RealtimeSyncState reports the realtime sync state machine's current
	// state per chain, as an enum-valued gauge (see realtimesync.State).
	RealtimeSyncState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ponder",
		Subsystem: "realtime_sync",
		Name:      "state",
		Help:      "Current realtime sync state (0=Syncing,1=Realtime,2=Stalled,3=Errored), by chain ID.",
	}, []string{"chain_id"})
)

// RPCRetryInc records a retried RPC call for method.
func RPCRetryInc(method string) {
	rpcRetries.WithLabelValues(method).Inc()
}

// RPCRequestInc records an issued RPC call for method.
func RPCRequestInc(method string) {
	rpcRequests.WithLabelValues(method).Inc()
}

// RPCErrorInc records an RPC call that failed after exhausting retries.
func RPCErrorInc(method string) {
	rpcErrors.WithLabelValues(method).Inc()
}

// RPCRequestDuration returns the observer for method's latency histogram.
func RPCRequestDuration(method string) prometheus.Observer {
	return rpcRequestDuration.WithLabelValues(method)
}
