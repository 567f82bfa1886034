// Package metrics implements the MetricsRecorder port with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

var _ driven.MetricsRecorder = (*Collector)(nil)

// Collector records ceremony, SLA and provider signals as Prometheus series.
type Collector struct {
	ceremonies     *prometheus.CounterVec
	ceremonyTime   *prometheus.HistogramVec
	slaBreaches    prometheus.Counter
	slaBreachTime  prometheus.Histogram
	providerCalls  *prometheus.CounterVec
	providerHealth *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its series with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ceremonies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passkeywallet_ceremonies_total",
			Help: "Credential ceremonies by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ceremonyTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passkeywallet_ceremony_duration_seconds",
			Help:    "Wall-clock duration of credential ceremonies.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"kind"}),
		slaBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passkeywallet_wallet_sla_breaches_total",
			Help: "Wallet creations that completed after the latency target.",
		}),
		slaBreachTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "passkeywallet_wallet_sla_breach_seconds",
			Help:    "Duration of wallet creations that breached the latency target.",
			Buckets: []float64{15, 20, 30, 45, 60, 90},
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passkeywallet_provider_calls_total",
			Help: "Paymaster provider calls by provider, operation and outcome.",
		}, []string{"provider", "op", "outcome"}),
		providerHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "passkeywallet_provider_up",
			Help: "1 if the last health probe of the provider succeeded.",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.ceremonies,
		c.ceremonyTime,
		c.slaBreaches,
		c.slaBreachTime,
		c.providerCalls,
		c.providerHealth,
	)

	return c
}

// ObserveCeremony counts a finished ceremony and records its duration.
func (c *Collector) ObserveCeremony(kind, outcome string, elapsed time.Duration) {
	c.ceremonies.WithLabelValues(kind, outcome).Inc()
	c.ceremonyTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordSLABreach counts a wallet creation over the latency target.
func (c *Collector) RecordSLABreach(elapsed time.Duration) {
	c.slaBreaches.Inc()
	c.slaBreachTime.Observe(elapsed.Seconds())
}

// RecordProviderCall counts one provider call.
func (c *Collector) RecordProviderCall(provider, op, outcome string) {
	c.providerCalls.WithLabelValues(provider, op, outcome).Inc()
}

// RecordProviderHealth stores the latest probe result for provider.
func (c *Collector) RecordProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	c.providerHealth.WithLabelValues(provider).Set(v)
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
