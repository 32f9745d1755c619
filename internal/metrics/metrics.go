// Package metrics exposes Prometheus collectors for token exchanges,
// GoToWebinar requests and registrations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gotowebinar_bridge"

// Metrics holds the bridge collectors. It satisfies the observer interfaces
// of the gotowebinar, credentials and registration packages.
type Metrics struct {
	registry *prometheus.Registry

	tokenExchanges  *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registrations   *prometheus.CounterVec
	refreshRuns     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tokenExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Token endpoint exchanges by grant type and outcome.",
		}, []string{"grant", "outcome"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "GoToWebinar API requests by method, target and outcome.",
		}, []string{"method", "target", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "GoToWebinar API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Processed feeds by outcome.",
		}, []string{"outcome"}),
		refreshRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_refresh_runs_total",
			Help:      "Scheduled token refresh runs by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveTokenExchange counts a token endpoint exchange
func (m *Metrics) ObserveTokenExchange(grant, outcome string) {
	m.tokenExchanges.WithLabelValues(grant, outcome).Inc()
}

// ObserveRequest counts an API request and records its latency
func (m *Metrics) ObserveRequest(method, target, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(method, target, outcome).Inc()
	m.requestDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// ObserveRegistration counts a processed feed
func (m *Metrics) ObserveRegistration(outcome string) {
	m.registrations.WithLabelValues(outcome).Inc()
}

// ObserveRefreshRun counts a scheduled refresh
func (m *Metrics) ObserveRefreshRun(outcome string) {
	m.refreshRuns.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
