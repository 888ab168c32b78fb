package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector aggregates the Prometheus metrics of the service
type MetricsCollector struct {
	// dispatch metrics
	dispatchSentTotal       *prometheus.CounterVec
	dispatchFailureTotal    *prometheus.CounterVec
	dispatchSuppressedTotal *prometheus.CounterVec
	dispatchDuration        *prometheus.HistogramVec
	inboundReceiptTotal     *prometheus.CounterVec
	setupAttemptTotal       *prometheus.CounterVec
	tokenUpsertTotal        *prometheus.CounterVec

	// order metrics
	orderCreationTotal    *prometheus.CounterVec
	stepTransitionTotal   *prometheus.CounterVec
	estimateTotal         *prometheus.CounterVec
	estimateDuration      prometheus.Histogram
	userRegistrationTotal *prometheus.CounterVec
	userLoginTotal        *prometheus.CounterVec

	// HTTP metrics
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// database metrics
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge

	// queue metrics
	queueMessageTotal *prometheus.CounterVec

	// runtime metrics
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcDuration     prometheus.Gauge
}

// NewMetricsCollector creates and registers the collector
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{}
	mc.initMetrics()
	return mc
}

func (mc *MetricsCollector) initMetrics() {
	mc.dispatchSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_sent_total",
			Help: "Total number of dispatched notifications",
		},
		[]string{"event", "role"},
	)

	mc.dispatchFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_failure_total",
			Help: "Total number of failed notification sends",
		},
		[]string{"event", "reason"},
	)

	mc.dispatchSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_suppressed_total",
			Help: "Total number of suppressed notifications",
		},
		[]string{"event", "reason"},
	)

	mc.dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Duration of notification dispatch cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	mc.inboundReceiptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_receipt_total",
			Help: "Total number of inbound notification receipts",
		},
		[]string{"status"},
	)

	mc.setupAttemptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_setup_attempt_total",
			Help: "Total number of notification setup attempts",
		},
		[]string{"status"},
	)

	mc.tokenUpsertTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_token_upsert_total",
			Help: "Total number of push token upserts",
		},
		[]string{"platform", "status"},
	)

	mc.orderCreationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_creation_total",
			Help: "Total number of order creations",
		},
		[]string{"status"},
	)

	mc.stepTransitionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_step_transition_total",
			Help: "Total number of order step transitions",
		},
		[]string{"step", "status"},
	)

	mc.estimateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_estimate_total",
			Help: "Total number of delivery estimates",
		},
		[]string{"status"},
	)

	mc.estimateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_estimate_duration_seconds",
			Help:    "Duration of delivery estimate computation",
			Buckets: prometheus.DefBuckets,
		},
	)

	mc.userRegistrationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_registration_total",
			Help: "Total number of user registrations",
		},
		[]string{"status"},
	)

	mc.userLoginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_login_total",
			Help: "Total number of user logins",
		},
		[]string{"status"},
	)

	mc.httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	mc.dbConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	mc.queueMessageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_message_total",
			Help: "Total number of queue messages",
		},
		[]string{"queue", "operation", "status"},
	)

	mc.memoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	mc.goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goroutine_count",
			Help: "Number of goroutines",
		},
	)

	mc.gcDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gc_duration_seconds",
			Help: "Cumulative GC pause duration",
		},
	)
}

// RecordDispatchSent records a notification handed to the provider
func (mc *MetricsCollector) RecordDispatchSent(event, role string) {
	mc.dispatchSentTotal.WithLabelValues(event, role).Inc()
}

// RecordDispatchFailure records a failed provider send
func (mc *MetricsCollector) RecordDispatchFailure(event, reason string) {
	mc.dispatchFailureTotal.WithLabelValues(event, reason).Inc()
}

// RecordDispatchSuppressed records a notification dropped before sending
func (mc *MetricsCollector) RecordDispatchSuppressed(event, reason string) {
	mc.dispatchSuppressedTotal.WithLabelValues(event, reason).Inc()
}

// RecordDispatchDuration records one dispatch cycle duration
func (mc *MetricsCollector) RecordDispatchDuration(event string, duration time.Duration) {
	mc.dispatchDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordInboundReceipt records an inbound receipt outcome
func (mc *MetricsCollector) RecordInboundReceipt(status string) {
	mc.inboundReceiptTotal.WithLabelValues(status).Inc()
}

// RecordSetupAttempt records a notification setup attempt
func (mc *MetricsCollector) RecordSetupAttempt(status string) {
	mc.setupAttemptTotal.WithLabelValues(status).Inc()
}

// RecordTokenUpsert records a push token upsert
func (mc *MetricsCollector) RecordTokenUpsert(platform, status string) {
	mc.tokenUpsertTotal.WithLabelValues(platform, status).Inc()
}

// RecordOrderCreation records an order creation
func (mc *MetricsCollector) RecordOrderCreation(status string) {
	mc.orderCreationTotal.WithLabelValues(status).Inc()
}

// RecordStepTransition records an order step transition
func (mc *MetricsCollector) RecordStepTransition(step, status string) {
	mc.stepTransitionTotal.WithLabelValues(step, status).Inc()
}

// RecordEstimate records a delivery estimate outcome
func (mc *MetricsCollector) RecordEstimate(status string, duration time.Duration) {
	mc.estimateTotal.WithLabelValues(status).Inc()
	mc.estimateDuration.Observe(duration.Seconds())
}

// RecordUserRegistration records a user registration
func (mc *MetricsCollector) RecordUserRegistration(status string) {
	mc.userRegistrationTotal.WithLabelValues(status).Inc()
}

// RecordUserLogin records a user login
func (mc *MetricsCollector) RecordUserLogin(status string) {
	mc.userLoginTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string) {
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (mc *MetricsCollector) RecordHTTPDuration(method, path string, duration time.Duration) {
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateDBConnections updates database pool gauges
func (mc *MetricsCollector) UpdateDBConnections(active, idle int) {
	mc.dbConnectionsActive.Set(float64(active))
	mc.dbConnectionsIdle.Set(float64(idle))
}

// RecordQueueMessage records a queue publish or consume
func (mc *MetricsCollector) RecordQueueMessage(queue, operation, status string) {
	mc.queueMessageTotal.WithLabelValues(queue, operation, status).Inc()
}

// UpdateSystemMetrics samples runtime gauges
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
	mc.gcDuration.Set(float64(m.PauseTotalNs) / 1e9)
}

// StartSystemMetricsCollection samples runtime gauges until ctx is done
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}
