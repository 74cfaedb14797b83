package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	var m dto.Metric
	if err := o.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if m.TurnTotal == nil || m.UpstreamAttempts == nil || m.BillingTotal == nil {
		t.Fatal("expected metrics to be initialized")
	}
	if m.AutomationTotal == nil || m.GeoResolveTotal == nil || m.RateLimitedTotal == nil {
		t.Fatal("expected metrics to be initialized")
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors; no duplicate registration panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestRecordAttempt(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttempt("gpt-4o-mini", OutcomeRetryable, 120)
	m.RecordAttempt("gpt-4o-mini", OutcomeRetryable, 80)
	m.RecordAttempt("deepseek", OutcomeSuccess, 900)
	m.RecordAttempt("missing", OutcomeSkipped, 0)

	if v := counterValue(t, m.UpstreamAttempts.WithLabelValues("gpt-4o-mini", OutcomeRetryable)); v != 2 {
		t.Errorf("expected 2 retryable attempts, got %v", v)
	}
	if v := counterValue(t, m.UpstreamAttempts.WithLabelValues("deepseek", OutcomeSuccess)); v != 1 {
		t.Errorf("expected 1 success, got %v", v)
	}
	if n := histogramCount(t, m.UpstreamLatencyMs.WithLabelValues("missing")); n != 0 {
		t.Errorf("skipped attempts must not observe latency, got %d samples", n)
	}
	if n := histogramCount(t, m.UpstreamLatencyMs.WithLabelValues("gpt-4o-mini")); n != 2 {
		t.Errorf("expected 2 latency samples, got %d", n)
	}
}

func TestRecordBilling(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBilling("billed", "gpt-4o-mini", 3)
	m.RecordBilling("duplicate", "gpt-4o-mini", 0)

	if v := counterValue(t, m.CreditsCharged.WithLabelValues("gpt-4o-mini")); v != 3 {
		t.Errorf("expected 3 credits charged, got %v", v)
	}
	if v := counterValue(t, m.BillingTotal.WithLabelValues("duplicate")); v != 1 {
		t.Errorf("expected 1 duplicate, got %v", v)
	}
}

func TestRecordTurn(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTurn("200", "gpt-4o-mini", 1500)
	m.RecordTurn("502", "", 0)

	if v := counterValue(t, m.TurnTotal.WithLabelValues("502")); v != 1 {
		t.Errorf("expected one 502 turn, got %v", v)
	}
	if n := histogramCount(t, m.TurnDurationMs.WithLabelValues("gpt-4o-mini")); n != 1 {
		t.Errorf("expected one duration sample, got %d", n)
	}
}
