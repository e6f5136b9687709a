package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	commissionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissions_recorded_total",
			Help: "Commission rows created, by kind",
		},
		[]string{"kind"},
	)

	commissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_transitions_total",
			Help: "Commission status transitions",
		},
		[]string{"from", "to"},
	)

	poolDistributed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_distributed_amount_total",
			Help: "Money distributed from the bonus pools",
		},
		[]string{"pool"},
	)

	aggregateMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregate_mismatch_total",
			Help: "Affiliate aggregates that disagree with their ledger",
		},
	)

	payoutsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_processed_total",
			Help: "Payout requests processed, by final status",
		},
		[]string{"status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Scheduled job run time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"job", "outcome"},
	)
)

// ObserveRequest records one HTTP request.
func ObserveRequest(method, endpoint string, status int, latency time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(latency.Seconds())
}

// CommissionRecorded counts a newly created commission.
func CommissionRecorded(kind string) {
	commissionsRecorded.WithLabelValues(kind).Inc()
}

// CommissionTransition counts a status change.
func CommissionTransition(from, to string) {
	commissionTransitions.WithLabelValues(from, to).Inc()
}

// PoolDistributed adds a distributed amount for "ranked" or "lottery".
func PoolDistributed(pool string, amount decimal.Decimal) {
	poolDistributed.WithLabelValues(pool).Add(amount.InexactFloat64())
}

// AggregateMismatch counts a failed reconciliation.
func AggregateMismatch() {
	aggregateMismatches.Inc()
}

// PayoutProcessed counts a payout that reached status.
func PayoutProcessed(status string) {
	payoutsProcessed.WithLabelValues(status).Inc()
}

// ObserveJob records a job run.
func ObserveJob(job string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	jobDuration.WithLabelValues(job, outcome).Observe(time.Since(started).Seconds())
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
