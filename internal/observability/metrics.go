package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/pkg/models"
)

// PrometheusMetrics counts registry operations and connection probes on its
// own registry so tests and multiple app instances never collide.
type PrometheusMetrics struct {
	registry     *prometheus.Registry
	operations   *prometheus.CounterVec
	probes       *prometheus.CounterVec
	probeLatency *prometheus.HistogramVec
}

var _ core.OperationRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates and registers the knc collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knc_registry_operations_total",
			Help: "Registry mutations by operation and variant.",
		}, []string{"op", "variant"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knc_probes_total",
			Help: "Connection probes by variant and outcome.",
		}, []string{"variant", "outcome"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "knc_probe_latency_seconds",
			Help:    "Connection probe latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"variant"}),
	}
	m.registry.MustRegister(
		m.operations,
		m.probes,
		m.probeLatency,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *PrometheusMetrics) RecordOperation(op string, variant models.ConfigVariant) {
	m.operations.WithLabelValues(op, string(variant)).Inc()
}

func (m *PrometheusMetrics) RecordProbe(variant models.ConfigVariant, success bool, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.probes.WithLabelValues(string(variant), outcome).Inc()
	m.probeLatency.WithLabelValues(string(variant)).Observe(latency.Seconds())
}

// Registry exposes the underlying registry for gathering in tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
