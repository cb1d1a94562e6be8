package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Kazi.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// File operation metrics.
	FileOpsTotal   *prometheus.CounterVec
	FileOpDuration *prometheus.HistogramVec

	// Script execution metrics.
	ScriptExecutionsTotal   *prometheus.CounterVec
	ScriptExecutionDuration prometheus.Histogram

	// Sandbox metrics.
	SandboxExecutionsTotal   *prometheus.CounterVec
	SandboxExecutionDuration prometheus.Histogram

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
	WatchClients   prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		FileOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kazi",
			Subsystem: "file",
			Name:      "operations_total",
			Help:      "Total file operations by operation and outcome.",
		}, []string{"operation", "status"}),

		FileOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kazi",
			Subsystem: "file",
			Name:      "operation_duration_seconds",
			Help:      "File operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),

		ScriptExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kazi",
			Subsystem: "script",
			Name:      "executions_total",
			Help:      "Total script executions by outcome.",
		}, []string{"status"}),

		ScriptExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kazi",
			Subsystem: "script",
			Name:      "execution_duration_seconds",
			Help:      "Script execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		SandboxExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kazi",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total sandbox executions.",
		}, []string{"status"}),

		SandboxExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kazi",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kazi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kazi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kazi",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		WatchClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kazi",
			Name:      "watch_clients",
			Help:      "Number of connected workspace watch clients.",
		}),
	}

	reg.MustRegister(
		m.FileOpsTotal,
		m.FileOpDuration,
		m.ScriptExecutionsTotal,
		m.ScriptExecutionDuration,
		m.SandboxExecutionsTotal,
		m.SandboxExecutionDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
		m.WatchClients,
	)

	return m
}

// RecordFileOp records a file operation outcome. Nil-safe.
func (m *MetricsCollector) RecordFileOp(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.FileOpsTotal.WithLabelValues(operation, status).Inc()
	m.FileOpDuration.WithLabelValues(operation).Observe(seconds)
}

// WatchClientConnected increments the connected watch client gauge. Nil-safe.
func (m *MetricsCollector) WatchClientConnected() {
	if m == nil {
		return
	}
	m.WatchClients.Inc()
}

// WatchClientDisconnected decrements the connected watch client gauge. Nil-safe.
func (m *MetricsCollector) WatchClientDisconnected() {
	if m == nil {
		return
	}
	m.WatchClients.Dec()
}

// RecordScript records a script execution outcome. Nil-safe.
func (m *MetricsCollector) RecordScript(status string, seconds float64) {
	if m == nil {
		return
	}
	m.ScriptExecutionsTotal.WithLabelValues(status).Inc()
	m.ScriptExecutionDuration.Observe(seconds)
}
