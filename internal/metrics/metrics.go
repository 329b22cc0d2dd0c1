// Package metrics exposes Prometheus collectors for the scoring service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all service collectors, registered on a private registry so
// tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	ScoreRequests *prometheus.CounterVec
	ScoreDuration *prometheus.HistogramVec
	Alerts        *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	RequestRate   *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ScoreRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shrike_score_requests_total",
			Help: "Scoring requests by tenant and decision.",
		}, []string{"tenant_id", "decision"}),

		ScoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrike_score_duration_seconds",
			Help:    "End-to-end scoring latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tenant_id"}),

		Alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shrike_decline_alerts_total",
			Help: "Decline alerts raised by the async worker.",
		}, []string{"tenant_id"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shrike_http_requests_total",
			Help: "HTTP requests by method, route, and status class.",
		}, []string{"method", "route", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shrike_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		RequestRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shrike_tenant_requests_in_window",
			Help: "Requests observed in the current per-tenant metering window.",
		}, []string{"tenant_id"}),
	}
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
