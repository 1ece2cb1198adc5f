// ABOUTME: Prometheus collectors for verification decisions and latency
// ABOUTME: Registry is process-owned and injected, never package-global

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	verifyTotal    *prometheus.CounterVec
	verifyDuration prometheus.Histogram
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vk_verify_total",
				Help: "Verification decisions by outcome and denial reason.",
			},
			[]string{"outcome", "reason"},
		),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vk_verify_duration_seconds",
			Help:    "Verification request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(m.verifyTotal, m.verifyDuration)
	return m
}

// ObserveVerify records one verification outcome. reason is empty for
// allowed requests and redirects.
func (m *Metrics) ObserveVerify(outcome, reason string, elapsed time.Duration) {
	m.verifyTotal.WithLabelValues(outcome, reason).Inc()
	m.verifyDuration.Observe(elapsed.Seconds())
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
