// Package metrics exposes the agent's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal         *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	StageFallbacks     *prometheus.CounterVec
	SessionTurns       prometheus.Gauge
	QueueDepth         prometheus.Gauge
	SynthesisRequests  *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_turns_total",
				Help: "Processed audio submissions by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voice_agent_stage_duration_seconds",
				Help:    "Duration of turn pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		StageFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_stage_failures_total",
				Help: "Turn pipeline stage failures by error kind",
			},
			[]string{"stage", "kind"},
		),
		SessionTurns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "voice_agent_session_turns",
				Help: "User turns recorded in the current session",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "voice_agent_session_queue_depth",
				Help: "Session jobs waiting to run",
			},
		),
		SynthesisRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_synthesis_requests_total",
				Help: "Speech synthesis requests by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_agent_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPRequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voice_agent_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(
		m.TurnsTotal,
		m.StageDuration,
		m.StageFallbacks,
		m.SessionTurns,
		m.QueueDepth,
		m.SynthesisRequests,
		m.HTTPRequestsTotal,
		m.HTTPRequestSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveStage records one pipeline stage run.
func (m *Metrics) ObserveStage(stage string, d time.Duration, fallback model.Kind) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if fallback != "" {
		m.StageFallbacks.WithLabelValues(stage, string(fallback)).Inc()
	}
}

func (m *Metrics) TurnCompleted(outcome string) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetSessionTurns(n int) {
	m.SessionTurns.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SynthesisCompleted(outcome string) {
	m.SynthesisRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestSeconds.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
