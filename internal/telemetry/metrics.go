package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes recorded by the fallback orchestrator.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeRejected  = "rejected"
	OutcomeSkipped   = "skipped"
)

// Metrics holds all Prometheus metrics for the assistant.
type Metrics struct {
	TurnTotal         *prometheus.CounterVec
	TurnDurationMs    *prometheus.HistogramVec
	UpstreamAttempts  *prometheus.CounterVec
	UpstreamLatencyMs *prometheus.HistogramVec
	BillingTotal      *prometheus.CounterVec
	CreditsCharged    *prometheus.CounterVec
	AutomationTotal   *prometheus.CounterVec
	GeoResolveTotal   *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "persona_chat_turn_total",
			Help: "Chat turns handled, by final HTTP status.",
		}, []string{"status"}),

		TurnDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "persona_chat_turn_duration_ms",
			Help:    "End-to-end chat turn duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model"}),

		UpstreamAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "persona_upstream_attempt_total",
			Help: "Upstream completion attempts, by candidate and outcome.",
		}, []string{"candidate", "outcome"}),

		UpstreamLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "persona_upstream_latency_ms",
			Help:    "Latency of a single upstream completion attempt in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		}, []string{"candidate"}),

		BillingTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "persona_billing_total",
			Help: "Billing outcomes per turn.",
		}, []string{"result"}),

		CreditsCharged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "persona_credits_charged_total",
			Help: "Credits deducted from user balances.",
		}, []string{"model"}),

		AutomationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "persona_automation_total",
			Help: "Preview automations provisioned, by schedule source and result.",
		}, []string{"source", "result"}),

		GeoResolveTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "persona_geo_resolve_total",
			Help: "Client geo resolutions by source.",
		}, []string{"source"}),

		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "persona_rate_limited_total",
			Help: "Chat turns rejected by the per-user rate limit.",
		}),
	}
}

// RecordAttempt records one upstream attempt.
func (m *Metrics) RecordAttempt(candidate, outcome string, latencyMs float64) {
	m.UpstreamAttempts.WithLabelValues(candidate, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.UpstreamLatencyMs.WithLabelValues(candidate).Observe(latencyMs)
	}
}

// RecordTurn records a finished chat turn.
func (m *Metrics) RecordTurn(status, model string, durationMs float64) {
	m.TurnTotal.WithLabelValues(status).Inc()
	if model != "" {
		m.TurnDurationMs.WithLabelValues(model).Observe(durationMs)
	}
}

// RecordBilling records a billing outcome and the credits it deducted.
func (m *Metrics) RecordBilling(result, model string, credits int64) {
	m.BillingTotal.WithLabelValues(result).Inc()
	if credits > 0 {
		m.CreditsCharged.WithLabelValues(model).Add(float64(credits))
	}
}

func (m *Metrics) RecordAutomation(source, result string) {
	m.AutomationTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) RecordGeo(source string) {
	m.GeoResolveTotal.WithLabelValues(source).Inc()
}
