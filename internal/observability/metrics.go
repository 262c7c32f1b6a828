package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for islet
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Build metrics
	buildsTotal      *prometheus.CounterVec
	buildDuration    prometheus.Histogram
	buildAssets      *prometheus.GaugeVec
	buildIslands     prometheus.Gauge
	buildDiagnostics *prometheus.CounterVec

	// Render metrics
	rootsRendered *prometheus.CounterVec
	manifestBytes prometheus.Histogram

	// Manifest store metrics
	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates all metrics on a fresh registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates and registers all metrics on reg
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "islet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "islet_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "islet_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Build metrics
		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "islet_builds_total",
				Help: "Total number of build passes",
			},
			[]string{"status"},
		),
		buildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "islet_build_duration_seconds",
				Help:    "Build pass duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		buildAssets: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "islet_build_assets",
				Help: "Number of assets produced by the last build pass",
			},
			[]string{"type"},
		),
		buildIslands: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "islet_build_islands",
				Help: "Number of islands declared in the last build pass",
			},
		),
		buildDiagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "islet_build_diagnostics_total",
				Help: "Total number of build diagnostics",
			},
			[]string{"severity"},
		),

		// Render metrics
		rootsRendered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "islet_hydration_roots_rendered_total",
				Help: "Total number of hydration roots rendered",
			},
			[]string{"component"},
		),
		manifestBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "islet_manifest_size_bytes",
				Help:    "Size of the manifest shipped with each response",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
		),

		// Manifest store metrics
		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "islet_manifest_store_operations_total",
				Help: "Total number of manifest store operations",
			},
			[]string{"operation", "status"},
		),
		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "islet_manifest_store_operation_duration_seconds",
				Help:    "Manifest store operation latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),

		// System metrics
		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "islet_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		// fiber reuses the request buffers; labels outlive the request
		path := normalizePath(utils.CopyString(c.Path()))
		method := utils.CopyString(c.Method())

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordBuild records the outcome of one build pass
func (m *Metrics) RecordBuild(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.buildsTotal.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
}

// UpdateBuildStats replaces the per-type asset counts and the island count
func (m *Metrics) UpdateBuildStats(assetsByType map[string]int, islands int) {
	m.buildAssets.Reset()
	for assetType, count := range assetsByType {
		m.buildAssets.WithLabelValues(assetType).Set(float64(count))
	}
	m.buildIslands.Set(float64(islands))
}

// RecordDiagnostics records build warnings and errors
func (m *Metrics) RecordDiagnostics(warnings, errors int) {
	m.buildDiagnostics.WithLabelValues("warning").Add(float64(warnings))
	m.buildDiagnostics.WithLabelValues("error").Add(float64(errors))
}

// RecordRootRendered records a hydration root rendered for component
func (m *Metrics) RecordRootRendered(component string) {
	m.rootsRendered.WithLabelValues(component).Inc()
}

// RecordManifestSize records the encoded size of a response manifest
func (m *Metrics) RecordManifestSize(bytes int) {
	m.manifestBytes.Observe(float64(bytes))
}

// RecordStoreOperation records a manifest store operation
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.storeOperationsTotal.WithLabelValues(operation, status).Inc()
	m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// normalizePath keeps long paths from exploding label cardinality
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
