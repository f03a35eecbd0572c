package monitoring

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status_code"},
	)
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfund_operations_total",
			Help: "Total number of crowdfund operations by outcome",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crowdfund_operation_duration_seconds",
			Help:    "Duration of crowdfund operations including lock and commit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	OperationRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfund_operation_retries_total",
			Help: "Total number of operations retried after a transaction conflict",
		},
		[]string{"operation"},
	)

	TokensAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crowdfund_tokens_available",
			Help: "Number of tokens in the sale inventory",
		},
	)

	TokensSold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crowdfund_tokens_sold",
			Help: "Number of tokens sold in the current sale",
		},
	)

	TokensPurchasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowdfund_tokens_purchased_total",
			Help: "Total number of tokens purchased",
		},
	)

	SettlementBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfund_settlement_batches_total",
			Help: "Total number of settlement batches by path",
		},
		[]string{"path"},
	)

	SettlementMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfund_settlement_messages_total",
			Help: "Total number of messages emitted by settlement batches",
		},
		[]string{"kind"},
	)

	SalesClearedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crowdfund_sales_cleared_total",
			Help: "Total number of sales fully settled",
		},
	)

	OutboxDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crowdfund_outbox_dispatched_total",
			Help: "Total number of outbox messages dispatched by outcome",
		},
		[]string{"kind", "status"},
	)
)

var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

var (
	RedisCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Duration of Redis commands in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"command"},
	)

	RedisLockAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_lock_attempts_total",
			Help: "Total number of distributed lock attempts",
		},
		[]string{"lock_type"},
	)

	RedisLockSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_lock_success_total",
			Help: "Total number of successful lock acquisitions",
		},
		[]string{"lock_type"},
	)

	RedisLockFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_lock_failure_total",
			Help: "Total number of failed lock acquisitions",
		},
		[]string{"lock_type", "reason"},
	)

	RedisLockDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_lock_duration_seconds",
			Help:    "Duration of lock hold time in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"lock_type"},
	)
)

func TimeHTTPRequest(handler, method string) func(statusCode string) {
	start := time.Now()
	return func(statusCode string) {
		duration := time.Since(start).Seconds()
		HTTPRequestDuration.WithLabelValues(handler, method, statusCode).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(handler, method, statusCode).Inc()
	}
}

func TimeOperation(operation string) func() {
	start := time.Now()
	return func() {
		OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func TimeDBQuery(queryType, table string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		DBQueryDuration.WithLabelValues(queryType, table).Observe(duration)
	}
}

func TimeRedisCommand(command string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		RedisCommandDuration.WithLabelValues(command).Observe(duration)
	}
}

func TimeRedisLock(lockKey string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		lockType := getLockType(lockKey)
		RedisLockDuration.WithLabelValues(lockType).Observe(duration)
	}
}

func RecordOperation(operation, status string) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
}

func RecordRetry(operation string) {
	OperationRetriesTotal.WithLabelValues(operation).Inc()
}

func RecordOutboxDispatch(kind, status string) {
	OutboxDispatchedTotal.WithLabelValues(kind, status).Inc()
}

func UpdateSaleCounts(available, sold uint64) {
	TokensAvailable.Set(float64(available))
	TokensSold.Set(float64(sold))
}

func RecordLockAttempt(lockKey string) {
	lockType := getLockType(lockKey)
	RedisLockAttemptsTotal.WithLabelValues(lockType).Inc()
}

func RecordLockSuccess(lockKey string) {
	lockType := getLockType(lockKey)
	RedisLockSuccessTotal.WithLabelValues(lockType).Inc()
}

func RecordLockFailure(lockKey, reason string) {
	lockType := getLockType(lockKey)
	RedisLockFailureTotal.WithLabelValues(lockType, reason).Inc()
}

// getLockType keeps label cardinality bounded: "crowdfund:call" becomes "crowdfund".
func getLockType(lockKey string) string {
	if lockKey == "" {
		return "unknown"
	}
	prefix, _, _ := strings.Cut(lockKey, ":")
	switch prefix {
	case "crowdfund", "dispatcher", "keeper":
		return prefix
	default:
		return "other"
	}
}
