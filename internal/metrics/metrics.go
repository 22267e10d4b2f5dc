// Package metrics defines the Prometheus collectors for model traffic and
// degradation paths, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for LLMRequestsTotal.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LLMRequestsInFlight prometheus.Gauge
	LLMRequestsTotal    *prometheus.CounterVec
	LLMRequestDuration  prometheus.Histogram
	FallbacksTotal      *prometheus.CounterVec
	VerdictsTotal       *prometheus.CounterVec
	ClassificationTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		LLMRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sverka_llm_requests_in_flight",
				Help: "Language model requests currently holding a governor permit.",
			},
		),
		LLMRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sverka_llm_requests_total",
				Help: "Language model requests by outcome (ok, error, timeout).",
			},
			[]string{"outcome"},
		),
		LLMRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sverka_llm_request_duration_seconds",
				Help:    "Language model request latency in seconds, pacing excluded.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sverka_fallbacks_total",
				Help: "Degraded results by pipeline stage.",
			},
			[]string{"stage"},
		),
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sverka_verdicts_total",
				Help: "Criterion verdicts by status.",
			},
			[]string{"status"},
		),
		ClassificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sverka_classifications_total",
				Help: "Taxonomy decisions by level and deciding strategy.",
			},
			[]string{"level", "strategy"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.LLMRequestsInFlight,
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.FallbacksTotal,
		m.VerdictsTotal,
		m.ClassificationTotal,
	)

	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.LLMRequestsInFlight.Inc()
}

func (m *Metrics) RequestFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestsInFlight.Dec()
	m.LLMRequestsTotal.WithLabelValues(outcome).Inc()
	m.LLMRequestDuration.Observe(d.Seconds())
}

func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) Verdict(status string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Classified(level, strategy string) {
	if m == nil {
		return
	}
	m.ClassificationTotal.WithLabelValues(level, strategy).Inc()
}
