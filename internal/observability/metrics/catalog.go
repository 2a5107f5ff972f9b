package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics contains Prometheus metrics for catalog operations
type CatalogMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	imagesImportedTotal *prometheus.CounterVec
	imagesMissingGauge  prometheus.Gauge
	taskRunsTotal       *prometheus.CounterVec
	searchResultSize    prometheus.Histogram
	mountedLocations    prometheus.Gauge

	collectors []prometheus.Collector
}

// NewCatalogMetrics creates and registers catalog metrics
func NewCatalogMetrics(registry *prometheus.Registry) (*CatalogMetrics, error) {
	m := &CatalogMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CatalogMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picpocket_catalog_operations_total",
			Help: "Total number of catalog operations",
		},
		[]string{"operation", "status"}, // status: success, error
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "picpocket_catalog_operation_duration_seconds",
			Help:    "Time taken by catalog operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	m.imagesImportedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picpocket_images_imported_total",
			Help: "Images inserted or updated by imports, copies and task runs",
		},
		[]string{"source"},
	)

	m.imagesMissingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "picpocket_images_missing",
			Help: "Images whose files were not found by the last verification",
		},
	)

	m.taskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "picpocket_task_runs_total",
			Help: "Total number of task runs",
		},
		[]string{"status"},
	)

	m.searchResultSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "picpocket_search_result_size",
			Help:    "Number of images returned by searches",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount15),
		},
	)

	m.mountedLocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "picpocket_mounted_locations",
			Help: "Locations currently mounted in this process",
		},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.imagesImportedTotal,
		m.imagesMissingGauge,
		m.taskRunsTotal,
		m.searchResultSize,
		m.mountedLocations,
	}
}

// Describe implements the Collector interface
func (m *CatalogMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CatalogMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation records the outcome and duration of a catalog operation.
// All recording methods are safe on a nil receiver.
func (m *CatalogMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordImported counts images inserted or changed
func (m *CatalogMetrics) RecordImported(source string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.imagesImportedTotal.WithLabelValues(source).Add(float64(count))
}

// SetMissing records how many files the last verification could not find
func (m *CatalogMetrics) SetMissing(count int) {
	if m == nil {
		return
	}
	m.imagesMissingGauge.Set(float64(count))
}

// RecordTaskRun counts a task run
func (m *CatalogMetrics) RecordTaskRun(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.taskRunsTotal.WithLabelValues(status).Inc()
}

// RecordSearchResults observes the size of a search result
func (m *CatalogMetrics) RecordSearchResults(count int) {
	if m == nil {
		return
	}
	m.searchResultSize.Observe(float64(count))
}

// SetMounted records the number of mounted locations
func (m *CatalogMetrics) SetMounted(count int) {
	if m == nil {
		return
	}
	m.mountedLocations.Set(float64(count))
}
