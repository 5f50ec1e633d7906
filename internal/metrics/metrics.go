package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks ledger node calls per provider and operation
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_rpc_calls_total",
			Help: "Total number of ledger node calls",
		},
		[]string{"network", "provider", "operation"},
	)

	// RPCErrorsTotal tracks failed ledger node calls by retry classification
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_rpc_errors_total",
			Help: "Total number of ledger node call errors",
		},
		[]string{"network", "provider", "action"},
	)

	// RPCLatency tracks ledger node call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paywatch_rpc_latency_seconds",
			Help:    "Ledger node call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "provider", "operation"},
	)

	// ChainLatestBlock tracks the latest block height seen on the ledger
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paywatch_chain_latest_block",
			Help: "Latest block height reported by the ledger node",
		},
		[]string{"network"},
	)

	// ConfirmationsTotal counts confirmation outcomes. outcome is the resulting
	// order status, "noop" for idempotent replays, or the error kind.
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_confirmations_total",
			Help: "Total number of payment confirmation attempts by outcome",
		},
		[]string{"source", "outcome"},
	)

	// ConfirmationDuration tracks end-to-end confirmation latency
	ConfirmationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paywatch_confirmation_duration_seconds",
			Help:    "Payment confirmation latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	// DecimalsCacheTotal tracks token-decimals cache lookups
	DecimalsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_decimals_cache_total",
			Help: "Token decimals cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	// StoreConflictsTotal counts commits lost to a concurrent binding
	StoreConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywatch_store_conflicts_total",
			Help: "Order updates rejected by the store's txid binding constraints",
		},
	)

	// DBOpenConnections tracks the database pool size
	DBOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paywatch_db_open_connections",
			Help: "Open connections in the order store pool",
		},
	)
)
