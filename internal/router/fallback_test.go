package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/af-corp/persona-assistant/internal/router/adapters"
	"github.com/af-corp/persona-assistant/internal/types"
)

// scriptedGateway returns a fixed result per model id and records calls.
type scriptedGateway struct {
	results map[string]error
	calls   []string
}

func (g *scriptedGateway) Complete(_ context.Context, cand types.ModelCandidate, _ []types.Message) (*adapters.Completion, error) {
	g.calls = append(g.calls, cand.ID)
	if err := g.results[cand.ID]; err != nil {
		return nil, err
	}
	return &adapters.Completion{Content: "ok from " + cand.ID, StatusCode: 200}, nil
}

func retryable(status int) error {
	return &adapters.UpstreamError{Kind: adapters.FailureStatus, StatusCode: status, Retryable: true}
}

func terminal(status int) error {
	return &adapters.UpstreamError{Kind: adapters.FailureStatus, StatusCode: status, Message: "bad request"}
}

func newTestOrchestrator(r Resolver, g adapters.CompletionGateway) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(r, g, LinearBackoff(250*time.Millisecond, 200*time.Millisecond), nil)
	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return o, &slept
}

var turnMessages = []types.Message{{Role: "user", Content: "hi"}}

func TestRun_FirstSuccessShortCircuits(t *testing.T) {
	gw := &scriptedGateway{}
	o, slept := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	res, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("haiku"), types.Literal("gpt-mini"), types.Literal("qwen"),
	}, turnMessages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate.ID != "haiku" {
		t.Errorf("expected haiku, got %s", res.Candidate.ID)
	}
	if len(gw.calls) != 1 || gw.calls[0] != "haiku" {
		t.Errorf("expected exactly one call to haiku, got %v", gw.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("expected no backoff, got %v", *slept)
	}
}

func TestRun_RetryableAdvancesWithBackoff(t *testing.T) {
	gw := &scriptedGateway{results: map[string]error{
		"haiku":    retryable(503),
		"gpt-mini": retryable(429),
	}}
	o, slept := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	res, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("haiku"), types.Literal("gpt-mini"), types.Literal("qwen"),
	}, turnMessages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate.ID != "qwen" {
		t.Errorf("expected qwen, got %s", res.Candidate.ID)
	}
	want := []time.Duration{250 * time.Millisecond, 450 * time.Millisecond}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("backoff = %v, want %v", *slept, want)
	}
	if len(res.Attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(res.Attempts))
	}
}

func TestRun_StaleModelIDFallsBack(t *testing.T) {
	stale := &adapters.UpstreamError{
		Kind:       adapters.FailureStatus,
		StatusCode: 400,
		Message:    "openai/gpt-4o-mini is not a valid model ID",
		Retryable:  adapters.IsRetryableStatus(400, "openai/gpt-4o-mini is not a valid model ID"),
	}
	gw := &scriptedGateway{results: map[string]error{"gpt-mini": stale}}
	o, _ := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	res, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("gpt-mini"), types.Literal("haiku"),
	}, turnMessages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate.ID != "haiku" {
		t.Errorf("expected fallback to haiku, got %s", res.Candidate.ID)
	}
}

func TestRun_TerminalStopsImmediately(t *testing.T) {
	gw := &scriptedGateway{results: map[string]error{"haiku": terminal(400)}}
	o, slept := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	_, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("haiku"), types.Literal("gpt-mini"),
	}, turnMessages)
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	if len(gw.calls) != 1 {
		t.Errorf("expected no further candidates, got calls %v", gw.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("expected no backoff, got %v", *slept)
	}
}

func TestRun_Exhausted(t *testing.T) {
	transport := &adapters.UpstreamError{Kind: adapters.FailureTransport, Retryable: true, Err: errors.New("dial tcp: refused")}
	gw := &scriptedGateway{results: map[string]error{
		"haiku":    retryable(500),
		"gpt-mini": transport,
	}}
	o, slept := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	res, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("haiku"), types.Literal("gpt-mini"),
	}, turnMessages)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(res.Attempts))
	}
	if len(*slept) != 1 {
		t.Errorf("expected one backoff before last candidate, got %v", *slept)
	}
}

func TestRun_NoBackoffWhenNothingLeftResolves(t *testing.T) {
	gw := &scriptedGateway{results: map[string]error{"haiku": retryable(503)}}
	o, slept := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	// missing never resolves and fallback_model_1 binds to haiku again.
	_, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("haiku"), types.Literal("missing"), types.Alias("fallback_model_1"),
	}, turnMessages)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(gw.calls) != 1 {
		t.Errorf("expected a single upstream call, got %v", gw.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("expected no backoff without a further candidate, got %v", *slept)
	}
}

func TestRun_SkipsUnresolvedAndDuplicateSignatures(t *testing.T) {
	gw := &scriptedGateway{results: map[string]error{"gpt-mini": retryable(502)}}
	o, _ := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	// default_model and fallback_model_2 both bind to gpt-mini.
	_, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("missing"),
		types.Alias("default_model"),
		types.Alias("fallback_model_2"),
	}, turnMessages)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(gw.calls) != 1 {
		t.Errorf("expected gpt-mini to be called once, got %v", gw.calls)
	}
}

func TestRun_NoCandidates(t *testing.T) {
	gw := &scriptedGateway{}
	o, _ := newTestOrchestrator(newTestResolver(&fakeStore{}, ""), gw)

	_, err := o.Run(context.Background(), "req", []types.CandidateKey{types.Alias("default_model")}, turnMessages)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("expected no upstream calls, got %v", gw.calls)
	}
}

func TestRun_NonUpstreamErrorIsRetryable(t *testing.T) {
	gw := &scriptedGateway{results: map[string]error{"haiku": errors.New("boom")}}
	o, _ := newTestOrchestrator(newTestResolver(&fakeStore{}, "sk"), gw)

	res, err := o.Run(context.Background(), "req", []types.CandidateKey{
		types.Literal("haiku"), types.Literal("qwen"),
	}, turnMessages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate.ID != "qwen" {
		t.Errorf("expected qwen, got %s", res.Candidate.ID)
	}
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(250*time.Millisecond, 200*time.Millisecond)
	if b(0) != 250*time.Millisecond || b(2) != 650*time.Millisecond {
		t.Errorf("unexpected backoff values %s %s", b(0), b(2))
	}
}
