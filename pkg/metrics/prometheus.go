// Package metrics provides Prometheus metrics for the admitcast forecasting service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the admitcast service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Forecast Metrics
	forecasts       *prometheus.CounterVec
	forecastLatency prometheus.Histogram
	trainingLatency prometheus.Histogram
	trainingCohort  prometheus.Histogram
	trainingLoss    prometheus.Gauge
	documentScores  *prometheus.HistogramVec
	rubricNotFound  prometheus.Counter
	documentLatency prometheus.Histogram

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryRecordsTotal prometheus.Gauge
	repositoryQueryLatency *prometheus.HistogramVec
	recordsLoaded          *prometheus.CounterVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init rebuilds the global manager on a fresh custom registry. Call it once
// at startup, before any metric is recorded or served.
func Init(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(customRegistry))...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "admitcast",
		subsystem:        "forecast",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.forecasts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "forecasts_total",
		Help:        "Total number of forecasts by result",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.forecastLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "forecast_latency_milliseconds",
		Help:        "End-to-end forecast latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.trainingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_latency_milliseconds",
		Help:        "Per-request classifier training latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.trainingCohort = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_cohort_size",
		Help:        "Number of decided historical records used for training",
		Buckets:     prometheus.ExponentialBuckets(1, 2, 14),
		ConstLabels: m.constLabels,
	})

	m.trainingLoss = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "training_last_loss",
		Help:        "Mean binary cross-entropy of the last epoch of the most recent training run",
		ConstLabels: m.constLabels,
	})

	m.documentScores = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "document_score",
		Help:        "Rubric scores of evaluated documents",
		Buckets:     prometheus.LinearBuckets(1, 1, 10),
		ConstLabels: m.constLabels,
	}, []string{"document_type"})

	m.rubricNotFound = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rubric_not_found_total",
		Help:        "Documents submitted for an institution or document type without a rubric",
		ConstLabels: m.constLabels,
	})

	m.documentLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "document_latency_milliseconds",
		Help:        "Rubric scoring latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.repositoryRecordsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "repository_records_total",
		Help:        "Total number of historical records held by the store",
		ConstLabels: m.constLabels,
	})

	m.repositoryQueryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "repository_query_latency_milliseconds",
		Help:        "Repository query latency in milliseconds by store kind",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"store"})

	m.recordsLoaded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "records_loaded_total",
		Help:        "Bulk-loaded historical records by result (loaded or skipped)",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total errors by component",
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_type_total",
			Help:        "Total errors by type and severity",
			ConstLabels: m.constLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "Current heap allocation in bytes",
		ConstLabels: m.constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutines",
		Help:        "Current number of goroutines",
		ConstLabels: m.constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

// RecordForecast increments the forecast counter for result ("success" or "error").
func RecordForecast(result string) {
	globalManager.forecasts.WithLabelValues(result).Inc()
}

// RecordForecastLatency records end-to-end forecast latency in milliseconds.
func RecordForecastLatency(latencyMs float64) {
	globalManager.forecastLatency.Observe(latencyMs)
}

// RecordTraining records one classifier training run.
func RecordTraining(latencyMs float64, cohort int, loss float64) {
	globalManager.trainingLatency.Observe(latencyMs)
	globalManager.trainingCohort.Observe(float64(cohort))
	globalManager.trainingLoss.Set(loss)
}

// RecordDocumentScore records the rubric score of one document.
func RecordDocumentScore(documentType string, score, latencyMs float64) {
	globalManager.documentScores.WithLabelValues(documentType).Observe(score)
	globalManager.documentLatency.Observe(latencyMs)
}

// RecordRubricNotFound increments the missing-rubric counter.
func RecordRubricNotFound() {
	globalManager.rubricNotFound.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateRepositoryRecordsTotal updates the total number of stored records.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryQueryLatency records repository query latency in milliseconds.
func RecordRepositoryQueryLatency(store string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(store).Observe(latencyMs)
}

// RecordRecordsLoaded adds n to the bulk-load counter for result.
func RecordRecordsLoaded(result string, n int) {
	globalManager.recordsLoaded.WithLabelValues(result).Add(float64(n))
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records the average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
