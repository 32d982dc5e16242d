package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector collects request and export metrics. Each collector owns a
// private Prometheus registry so several clients can coexist in one process.
type MetricsCollector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestErrors   *prometheus.CounterVec
	retries         *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	blocksFetched   prometheus.Counter
	rowsEmitted     prometheus.Counter
	valuesStreamed  prometheus.Counter
	streamedChars   prometheus.Counter

	// Atomic counters back the snapshot returned by GetMetrics.
	totalRequests  int64
	totalErrors    int64
	totalRetries   int64
	totalBlocks    int64
	totalRows      int64
	totalStreamed  int64
	breakerRejects int64

	mu         sync.Mutex
	errorStats map[string]int64
	startTime  time.Time
}

// Metrics represents a snapshot of all collected metrics.
type Metrics struct {
	TotalRequests      int64 `json:"total_requests"`
	TotalErrors        int64 `json:"total_errors"`
	TotalRetries       int64 `json:"total_retries"`
	CircuitBreakerHits int64 `json:"circuit_breaker_hits"`

	BlocksFetched  int64 `json:"blocks_fetched"`
	RowsEmitted    int64 `json:"rows_emitted"`
	ValuesStreamed int64 `json:"values_streamed"`

	ErrorRate   float64 `json:"error_rate"`
	SuccessRate float64 `json:"success_rate"`

	ErrorBreakdown map[string]int64 `json:"error_breakdown"`

	CollectionStart time.Time     `json:"collection_start"`
	Uptime          time.Duration `json:"uptime"`
}

// NewMetricsCollector creates a new metrics collector.
//
// Returns:
//   - *MetricsCollector: A new metrics collector instance.
//
// Example:
//
//	collector := NewMetricsCollector()
//	http.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exportclient_requests_total",
				Help: "Total number of export API requests",
			},
			[]string{"operation", "outcome"},
		),
		requestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exportclient_request_errors_total",
				Help: "Total number of failed export API requests by error type",
			},
			[]string{"operation", "error_type"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exportclient_retries_total",
				Help: "Total number of retried export API requests",
			},
			[]string{"operation"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exportclient_request_duration_seconds",
				Help:    "Export API request latency including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		blocksFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "exportclient_blocks_fetched_total",
			Help: "Total number of non-empty result blocks fetched",
		}),
		rowsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "exportclient_rows_emitted_total",
			Help: "Total number of rows emitted",
		}),
		valuesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "exportclient_long_text_streams_total",
			Help: "Total number of long-text values resolved by streaming",
		}),
		streamedChars: factory.NewCounter(prometheus.CounterOpts{
			Name: "exportclient_long_text_streamed_chars_total",
			Help: "Total number of characters read from long-text streams",
		}),
		errorStats: make(map[string]int64),
		startTime:  time.Now(),
	}
}

// Registry returns the Prometheus registry holding this collector's metrics.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// RecordRequest records metrics for a completed request.
//
// Arguments:
//   - operation: Name of the remote call (e.g. "initializeexport").
//   - duration: How long the operation took, including retries.
//   - attempts: Number of attempts made.
//   - err: Error that occurred (nil if successful).
func (mc *MetricsCollector) RecordRequest(operation string, duration time.Duration, attempts int, err error) {
	atomic.AddInt64(&mc.totalRequests, 1)
	mc.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())

	if attempts > 1 {
		atomic.AddInt64(&mc.totalRetries, int64(attempts-1))
		mc.retries.WithLabelValues(operation).Add(float64(attempts - 1))
	}

	if err == nil {
		mc.requests.WithLabelValues(operation, "success").Inc()
		return
	}

	atomic.AddInt64(&mc.totalErrors, 1)
	mc.requests.WithLabelValues(operation, "error").Inc()

	errorType := getErrorType(err)
	mc.requestErrors.WithLabelValues(operation, errorType).Inc()

	var breakerErr *CircuitBreakerError
	if errors.As(err, &breakerErr) {
		atomic.AddInt64(&mc.breakerRejects, 1)
	}

	mc.mu.Lock()
	mc.errorStats[errorType]++
	mc.mu.Unlock()
}

// RecordBlock records a fetched block of rows.
func (mc *MetricsCollector) RecordBlock(rows int) {
	atomic.AddInt64(&mc.totalBlocks, 1)
	atomic.AddInt64(&mc.totalRows, int64(rows))
	mc.blocksFetched.Inc()
	mc.rowsEmitted.Add(float64(rows))
}

// RecordStreamedValue records a long-text value resolved by streaming.
func (mc *MetricsCollector) RecordStreamedValue(chars int) {
	atomic.AddInt64(&mc.totalStreamed, 1)
	mc.valuesStreamed.Inc()
	mc.streamedChars.Add(float64(chars))
}

// GetMetrics returns a snapshot of the current metrics.
func (mc *MetricsCollector) GetMetrics() *Metrics {
	m := &Metrics{
		TotalRequests:      atomic.LoadInt64(&mc.totalRequests),
		TotalErrors:        atomic.LoadInt64(&mc.totalErrors),
		TotalRetries:       atomic.LoadInt64(&mc.totalRetries),
		CircuitBreakerHits: atomic.LoadInt64(&mc.breakerRejects),
		BlocksFetched:      atomic.LoadInt64(&mc.totalBlocks),
		RowsEmitted:        atomic.LoadInt64(&mc.totalRows),
		ValuesStreamed:     atomic.LoadInt64(&mc.totalStreamed),
		CollectionStart:    mc.startTime,
		Uptime:             time.Since(mc.startTime),
		ErrorBreakdown:     make(map[string]int64),
	}

	if m.TotalRequests > 0 {
		m.ErrorRate = float64(m.TotalErrors) / float64(m.TotalRequests)
		m.SuccessRate = 1 - m.ErrorRate
	}

	mc.mu.Lock()
	for k, v := range mc.errorStats {
		m.ErrorBreakdown[k] = v
	}
	mc.mu.Unlock()

	return m
}

// getErrorType returns a short label for the most specific known error type.
func getErrorType(err error) string {
	var (
		httpErr    *HTTPError
		rateErr    *RateLimitError
		netErr     *NetworkError
		authnErr   *AuthenticationError
		authzErr   *AuthorizationError
		serErr     *SerializationError
		breakerErr *CircuitBreakerError
	)
	switch {
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &authnErr):
		return "authentication"
	case errors.As(err, &authzErr):
		return "authorization"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &serErr):
		return "serialization"
	case errors.As(err, &breakerErr):
		return "circuit_breaker"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
