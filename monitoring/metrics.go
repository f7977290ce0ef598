package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the router's Prometheus instrumentation on a private
// registry, so tests can assemble independent instances.
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal  *prometheus.CounterVec
	routingDuration *prometheus.HistogramVec
	providerHealth  *prometheus.GaugeVec
	costTotal       *prometheus.CounterVec
	rateLimitDrops  prometheus.Counter
	probeLatency    *prometheus.HistogramVec
}

func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "overmind",
				Name:      "routing_decisions_total",
				Help:      "Routing results by outcome and selected provider",
			},
			[]string{"outcome", "provider"},
		),
		routingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "overmind",
				Name:      "routing_duration_seconds",
				Help:      "Time spent producing a routing decision",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"capability"},
		),
		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "overmind",
				Name:      "provider_healthy",
				Help:      "Provider health status (1 healthy, 0.5 degraded, 0 unhealthy)",
			},
			[]string{"provider"},
		),
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "overmind",
				Name:      "cost_usd_total",
				Help:      "Recorded spending in USD",
			},
			[]string{"provider"},
		),
		rateLimitDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "overmind",
				Name:      "rate_limit_drops_total",
				Help:      "Requests denied by the rate limiter",
			},
		),
		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "overmind",
				Name:      "probe_latency_seconds",
				Help:      "Health probe round-trip latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"provider"},
		),
	}

	collectors := []prometheus.Collector{
		m.decisionsTotal,
		m.routingDuration,
		m.providerHealth,
		m.costTotal,
		m.rateLimitDrops,
		m.probeLatency,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %v", err)
		}
	}
	return m, nil
}

// RecordDecision counts one routing result. Provider is empty for
// non-decision outcomes.
func (m *Metrics) RecordDecision(outcome string, provider string) {
	m.decisionsTotal.WithLabelValues(outcome, provider).Inc()
}

// ObserveRoutingDuration records the time spent on one routing call.
func (m *Metrics) ObserveRoutingDuration(capability string, elapsed time.Duration) {
	m.routingDuration.WithLabelValues(capability).Observe(elapsed.Seconds())
}

// SetProviderHealth publishes a provider's health as a gauge value.
func (m *Metrics) SetProviderHealth(provider string, value float64) {
	m.providerHealth.WithLabelValues(provider).Set(value)
}

// AddCost accumulates recorded spending.
func (m *Metrics) AddCost(provider string, costUSD float64) {
	m.costTotal.WithLabelValues(provider).Add(costUSD)
}

// RecordRateLimitDrop counts one denied request.
func (m *Metrics) RecordRateLimitDrop() {
	m.rateLimitDrops.Inc()
}

// ObserveProbeLatency records one health probe round trip.
func (m *Metrics) ObserveProbeLatency(provider string, latencyMs int64) {
	m.probeLatency.WithLabelValues(provider).Observe(float64(latencyMs) / 1000)
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
