// Package metrics exposes the process's Prometheus registry and the HTTP
// middleware that feeds it request counters/histograms, mirroring
// infrastructure/metrics/middleware.go's request-count/duration/error shape
// but backed by real Prometheus vectors instead of hand-rolled maps so the
// counters survive a `/metrics` scrape by any standard collector.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the core registers. Each series
// is its own typed field (e.g. JobsProcessedTotal) rather than an entry in
// a shared map, so a misspelled label can't silently merge two series.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge

	JobsProcessedTotal *prometheus.CounterVec
	JobsActive         prometheus.Gauge
	JobDurationSeconds prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheEntries     prometheus.Gauge

	DeliveryAttemptsTotal *prometheus.CounterVec

	MCPToolCallsTotal  *prometheus.CounterVec
	MCPActiveSessions  prometheus.Gauge
}

// New builds Metrics registered against a private registry (not the global
// default one), so tests can construct multiple independent instances
// without "duplicate metrics collector registration" panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratchet_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratchet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ratchet_http_active_requests",
			Help: "Number of HTTP requests currently being handled.",
		}),

		JobsProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratchet_jobs_processed_total",
			Help: "Total jobs processed by terminal outcome.",
		}, []string{"outcome"}), // completed | failed | retrying | cancelled
		JobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ratchet_jobs_active",
			Help: "Number of jobs currently being processed.",
		}),
		JobDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratchet_job_duration_seconds",
			Help:    "Job execution duration in seconds, queue claim to terminal status.",
			Buckets: prometheus.DefBuckets,
		}),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ratchet_cache_hits_total",
			Help: "Total result cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ratchet_cache_misses_total",
			Help: "Total result cache misses.",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ratchet_cache_entries",
			Help: "Current number of entries held in the result cache.",
		}),

		DeliveryAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratchet_output_delivery_attempts_total",
			Help: "Total output delivery attempts by destination kind and outcome.",
		}, []string{"kind", "outcome"}),

		MCPToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ratchet_mcp_tool_calls_total",
			Help: "Total MCP tools/call invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		MCPActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ratchet_mcp_active_sessions",
			Help: "Number of currently active MCP sessions.",
		}),
	}
}

// Handler returns the HTTP handler a server mounts at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments every request with HTTPRequestsTotal/Duration and
// tracks HTTPActiveRequests for the request's lifetime.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPActiveRequests.Inc()

		c.Next()

		m.HTTPActiveRequests.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
