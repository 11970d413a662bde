package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCalls counts chain RPC calls by chain, method and status
	RPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderscope_rpc_calls_total",
			Help: "Total number of chain RPC calls",
		},
		[]string{"chain", "method", "status"},
	)

	// FailedRanges counts event sub-batches skipped after RPC failures
	FailedRanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderscope_failed_ranges_total",
			Help: "Total number of block sub-ranges skipped during event fetches",
		},
		[]string{"chain"},
	)

	// SyncRuns counts sync invocations by kind, chain and outcome
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderscope_sync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"kind", "chain", "outcome"},
	)

	// SyncDuration tracks sync run time
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderscope_sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "chain"},
	)

	// LastSyncedBlock tracks the cursor per kind and chain
	LastSyncedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orderscope_last_synced_block",
			Help: "Last synced block per sync kind and chain",
		},
		[]string{"kind", "chain"},
	)

	// OrdersIngested counts order upserts by result
	OrdersIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderscope_orders_ingested_total",
			Help: "Order upserts by chain and result",
		},
		[]string{"chain", "result"},
	)

	// PriceFetches counts upstream price feed requests
	PriceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderscope_price_fetches_total",
			Help: "Upstream price feed requests by status",
		},
		[]string{"status"},
	)

	// VolumeUSD is the total of the latest volume snapshot
	VolumeUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderscope_volume_usd",
			Help: "Total volume in USD from the latest snapshot",
		},
	)
)
