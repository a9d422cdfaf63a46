// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingress metrics
	BatchesReceived   *prometheus.CounterVec
	TransactionsSeen  prometheus.Counter
	InstructionsSeen  *prometheus.CounterVec
	OperationsApplied *prometheus.CounterVec
	OperationsSkipped *prometheus.CounterVec
	BatchDuration     prometheus.Histogram
	HighestSlotSeen   prometheus.Gauge

	// Fetch metrics
	AccountFetches *prometheus.CounterVec
	FetchRetries   prometheus.Counter
	RPCCallLatency *prometheus.HistogramVec

	// Reconcile metrics
	ReconcileRuns      *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram
	ReconcileRefreshed *prometheus.CounterVec
	SkipsResolved      prometheus.Counter
	UnresolvedSkips    prometheus.Gauge
	WSNotifications    prometheus.Counter
	WSReconnects       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBatch     prometheus.Gauge
	LastSuccessfulReconcile prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dexloan_indexer"
	}

	return &Metrics{
		// Ingress metrics
		BatchesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "batches_total",
			Help:      "Total number of webhook batches by status",
		}, []string{"status"}),
		TransactionsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "transactions_total",
			Help:      "Total number of transactions received",
		}),
		InstructionsSeen: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "instructions_total",
			Help:      "Total number of decoded program instructions by name",
		}, []string{"instruction"}),
		OperationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "operations_applied_total",
			Help:      "Total number of materializer operations applied",
		}, []string{"kind", "action"}),
		OperationsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "operations_skipped_total",
			Help:      "Total number of operations skipped by reason",
		}, []string{"reason"}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "batch_duration_seconds",
			Help:      "Webhook batch processing duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Fetch metrics
		AccountFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "accounts_total",
			Help:      "Total number of account fetches by outcome",
		}, []string{"kind", "outcome"}),
		FetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total number of account fetch retries",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Reconcile metrics
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconcile runs by status",
		}, []string{"status"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Reconcile run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ReconcileRefreshed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "entities_refreshed_total",
			Help:      "Total number of entities refreshed from program accounts",
		}, []string{"kind"}),
		SkipsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "skips_resolved_total",
			Help:      "Total number of skipped operations resolved on replay",
		}),
		UnresolvedSkips: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "unresolved_skips",
			Help:      "Number of skipped operations awaiting replay",
		}),
		WSNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Total number of log notifications received",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulBatch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last fully processed webhook batch",
		}),
		LastSuccessfulReconcile: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reconcile_timestamp",
			Help:      "Unix timestamp of last successful reconcile run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBatch records a processed webhook batch.
func RecordBatch(status string, transactions int, duration time.Duration) {
	DefaultMetrics.BatchesReceived.WithLabelValues(status).Inc()
	DefaultMetrics.TransactionsSeen.Add(float64(transactions))
	DefaultMetrics.BatchDuration.Observe(duration.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulBatch.SetToCurrentTime()
	}
}

// RecordInstruction increments the decoded instruction counter.
func RecordInstruction(name string) {
	DefaultMetrics.InstructionsSeen.WithLabelValues(name).Inc()
}

// RecordOperationApplied increments the applied operations counter.
func RecordOperationApplied(kind, action string) {
	DefaultMetrics.OperationsApplied.WithLabelValues(kind, action).Inc()
}

// RecordOperationSkipped increments the skipped operations counter.
func RecordOperationSkipped(reason string) {
	DefaultMetrics.OperationsSkipped.WithLabelValues(reason).Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordFetch records the outcome of an account fetch.
func RecordFetch(kind, outcome string) {
	DefaultMetrics.AccountFetches.WithLabelValues(kind, outcome).Inc()
}

// RecordFetchRetry increments the fetch retry counter.
func RecordFetchRetry() {
	DefaultMetrics.FetchRetries.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordReconcileRun records a reconcile run.
func RecordReconcileRun(status string, duration time.Duration) {
	DefaultMetrics.ReconcileRuns.WithLabelValues(status).Inc()
	DefaultMetrics.ReconcileDuration.Observe(duration.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulReconcile.SetToCurrentTime()
	}
}

// RecordReconcileRefreshed adds to the refreshed entities counter.
func RecordReconcileRefreshed(kind string, n int) {
	DefaultMetrics.ReconcileRefreshed.WithLabelValues(kind).Add(float64(n))
}

// RecordSkipResolved increments the resolved skips counter.
func RecordSkipResolved() {
	DefaultMetrics.SkipsResolved.Inc()
}

// UpdateUnresolvedSkips sets the unresolved skips gauge.
func UpdateUnresolvedSkips(n int64) {
	DefaultMetrics.UnresolvedSkips.Set(float64(n))
}

// RecordWSNotification increments the log notification counter.
func RecordWSNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// RecordWSReconnect increments the reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
