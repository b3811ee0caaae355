package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Successful status transitions per entity.
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of applied workflow status transitions",
		},
		[]string{"entity", "from", "to"},
	)

	// Commands refused by the workflow engine, by error kind.
	WorkflowRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_rejections_total",
			Help: "Total number of workflow commands rejected",
		},
		[]string{"operation", "kind"},
	)

	// Time spent waiting for a per-entity lock (seconds).
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a per-entity lock",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"entity"},
	)

	// Payment gateway results.
	PaymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Total number of payment gateway results processed",
		},
		[]string{"kind", "outcome"}, // outcome: settled, declined, rejected, duplicate
	)

	// Gateway call latency (milliseconds).
	GatewayCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_latency_ms",
			Help:    "Payment gateway call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"endpoint", "status"},
	)

	// MQ consume latency (milliseconds).
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)

	// Outbox publications.
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Total number of outbox events handed to the broker",
		},
		[]string{"routing_key", "status"}, // status: sent, failed
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries above the slow-query threshold",
		},
		[]string{"sql"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

// RecordTransition counts an applied status transition.
func RecordTransition(entity, from, to string) {
	WorkflowTransitions.WithLabelValues(entity, from, to).Inc()
}

// RecordRejection counts a refused workflow command.
func RecordRejection(operation, kind string) {
	WorkflowRejections.WithLabelValues(operation, kind).Inc()
}

// RecordLockWait records how long a command waited for its entity lock.
func RecordLockWait(entity string, d time.Duration) {
	LockWaitDuration.WithLabelValues(entity).Observe(d.Seconds())
}

// RecordPaymentCallback counts a processed gateway result.
func RecordPaymentCallback(kind, outcome string) {
	PaymentCallbacks.WithLabelValues(kind, outcome).Inc()
}

// RecordGatewayCallLatency records a payment gateway round trip.
func RecordGatewayCallLatency(endpoint, status string, d time.Duration) {
	GatewayCallLatency.WithLabelValues(endpoint, status).Observe(float64(d.Milliseconds()))
}

// RecordMQConsumeLatency records MQ handler latency.
func RecordMQConsumeLatency(routingKey, queue string, d time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(d.Milliseconds()))
}

// RecordOutboxPublish counts an outbox dispatch attempt.
func RecordOutboxPublish(routingKey, status string) {
	OutboxPublished.WithLabelValues(routingKey, status).Inc()
}

// RecordDBQueryDuration records a repository call.
func RecordDBQueryDuration(operation, table string, d time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}

// IncrementSlowQuery counts a query slower than the tracer threshold.
func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueries.WithLabelValues(sql).Inc()
}

// RecordHTTPRequestDuration records HTTP handler latency.
func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
