package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Cache result labels
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// HTTPMetrics contains Prometheus metrics for the web API
type HTTPMetrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestErrors   *prometheus.CounterVec
	httpResponseSize    *prometheus.HistogramVec
	sessionCacheTotal   *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewHTTPMetrics creates and registers new HTTP metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picpocket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"}, // route is the echo path template, e.g. /api/v1/images/:id
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "picpocket_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
		},
		[]string{"method", "route"},
	)

	m.httpRequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picpocket_http_request_errors_total",
			Help: "Total number of failed HTTP requests",
		},
		[]string{"route", "category"}, // category: validation, not-found, conflict, file-io, version, ...
	)

	m.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "picpocket_http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: prometheus.ExponentialBuckets(BucketStart100B, BucketFactor10, BucketCount6), // 100B to ~10MB
		},
		[]string{"method", "route"},
	)

	m.sessionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picpocket_session_cache_lookups_total",
			Help: "Session lookups served by the in-memory cache",
		},
		[]string{"result"}, // hit, miss
	)

	m.collectors = []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestErrors,
		m.httpResponseSize,
		m.sessionCacheTotal,
	}
}

// Describe implements the Collector interface
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordHTTPRequest records a completed request. Safe on a nil receiver.
func (m *HTTPMetrics) RecordHTTPRequest(method, route string, statusCode int, duration float64, size int64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration)
	if size > 0 {
		m.httpResponseSize.WithLabelValues(method, route).Observe(float64(size))
	}
}

// RecordHTTPRequestError counts a failed request by error category
func (m *HTTPMetrics) RecordHTTPRequestError(route, category string) {
	if m == nil {
		return
	}
	m.httpRequestErrors.WithLabelValues(route, category).Inc()
}

// RecordSessionCache counts a session cache lookup
func (m *HTTPMetrics) RecordSessionCache(result string) {
	if m == nil {
		return
	}
	m.sessionCacheTotal.WithLabelValues(result).Inc()
}

// SessionCacheLookups returns how many lookups had the given result
func (m *HTTPMetrics) SessionCacheLookups(result string) float64 {
	if m == nil {
		return 0
	}
	metric := &dto.Metric{}
	if err := m.sessionCacheTotal.WithLabelValues(result).Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
