// Package metrics provides Prometheus metrics for the chat relay
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitedTotal prometheus.Counter
	FragmentsTotal   prometheus.Counter
	StreamsInFlight  prometheus.Gauge
	UpstreamErrors   *prometheus.CounterVec
	TokensRemaining  prometheus.Gauge
}

// New registers all metrics on a fresh registry, so independent handlers
// (and tests) never collide on the global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportchat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supportchat_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds, including streaming",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"route"},
		),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "supportchat_rate_limited_total",
			Help: "Chat requests rejected by the rate limiter",
		}),
		FragmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "supportchat_fragments_relayed_total",
			Help: "Text fragments relayed from the provider",
		}),
		StreamsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "supportchat_streams_in_flight",
			Help: "Chat streams currently open",
		}),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supportchat_upstream_errors_total",
				Help: "Provider failures by phase (before or during streaming)",
			},
			[]string{"phase"},
		),
		TokensRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "supportchat_rate_limit_tokens_remaining",
			Help: "Tokens left in the rate-limit bucket after the last request",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
