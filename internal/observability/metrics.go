// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Purchase metrics
	PurchasesTotal     *prometheus.CounterVec
	AttemptStagesTotal *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram
	PurchaseInFlight   prometheus.Gauge
	TokensSold         prometheus.Counter

	// Balance metrics
	BalanceRefreshTotal *prometheus.CounterVec
	CachedBalance       prometheus.Gauge

	// Reconciler metrics
	ReconciledTotal *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_presale"
	}

	return &Metrics{
		PurchasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "submissions_total",
			Help:      "Total number of purchase submissions by outcome",
		}, []string{"outcome"}),
		AttemptStagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "attempt_stages_total",
			Help:      "Total number of submission attempt stages by stage and outcome",
		}, []string{"stage", "outcome"}),
		SubmissionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "submission_duration_seconds",
			Help:      "Time from submission start to confirmation or failure",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		PurchaseInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "in_flight",
			Help:      "Number of purchases currently being submitted",
		}),
		TokensSold: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase",
			Name:      "tokens_sold_total",
			Help:      "Total number of tokens in confirmed purchases",
		}),

		BalanceRefreshTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "refresh_total",
			Help:      "Total number of balance refreshes by status",
		}, []string{"status"}),
		CachedBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "cached_lamports",
			Help:      "Last cached spendable balance in lamports",
		}),

		ReconciledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "records_total",
			Help:      "Total number of pending records resolved by resulting status",
		}, []string{"status"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPurchase records a finished submission and its duration.
func RecordPurchase(outcome string, durationSeconds float64) {
	DefaultMetrics.PurchasesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.SubmissionDuration.Observe(durationSeconds)
}

// RecordPurchaseRejected records a submission rejected before any network call.
func RecordPurchaseRejected(reason string) {
	DefaultMetrics.PurchasesTotal.WithLabelValues(reason).Inc()
}

// RecordAttemptStage records one stage of a submission attempt.
func RecordAttemptStage(stage, outcome string) {
	DefaultMetrics.AttemptStagesTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordTokensSold adds confirmed tokens to the sold counter.
func RecordTokensSold(tokens float64) {
	DefaultMetrics.TokensSold.Add(tokens)
}

// IncInFlight marks a submission as started; the returned func marks it done.
func IncInFlight() func() {
	DefaultMetrics.PurchaseInFlight.Inc()
	return DefaultMetrics.PurchaseInFlight.Dec
}

// RecordBalanceRefresh records a balance refresh and updates the cached gauge on success.
func RecordBalanceRefresh(lamports uint64, err error) {
	if err != nil {
		DefaultMetrics.BalanceRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.BalanceRefreshTotal.WithLabelValues("ok").Inc()
	DefaultMetrics.CachedBalance.Set(float64(lamports))
}

// RecordReconciled records a pending record resolved by the reconciler.
func RecordReconciled(status string) {
	DefaultMetrics.ReconciledTotal.WithLabelValues(status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
