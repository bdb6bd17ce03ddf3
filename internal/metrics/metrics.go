// Package metrics exposes Prometheus collectors for the proxy on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Metrics holds the proxy's collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
}

// New registers the collectors, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound requests broken down by route and outcome.",
		}, []string{"route", "outcome"}),
		upstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psi",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Calls to the PageSpeed API broken down by outcome.",
		}, []string{"outcome"}),
		upstreamLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "psi",
			Subsystem: "upstream",
			Name:      "duration_seconds",
			Help:      "Latency of calls to the PageSpeed API.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}
}

// ObserveRequest counts one inbound request.
func (m *Metrics) ObserveRequest(route, outcome string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, outcome).Inc()
}

// ObserveUpstream counts one upstream call and records its latency.
func (m *Metrics) ObserveUpstream(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(outcome).Inc()
	m.upstreamLatency.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
