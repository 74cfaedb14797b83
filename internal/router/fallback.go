package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/persona-assistant/internal/router/adapters"
	"github.com/af-corp/persona-assistant/internal/telemetry"
	"github.com/af-corp/persona-assistant/internal/types"
)

var (
	// ErrNoCandidates means no key in the chain resolved to a callable backend.
	ErrNoCandidates = errors.New("no resolvable model candidate")
	// ErrUpstreamRejected means an upstream returned a terminal, non-retryable error.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrExhausted means every attempted candidate failed with a retryable error.
	ErrExhausted = errors.New("all model candidates failed")
)

// Attempt records one step of the fallback loop.
type Attempt struct {
	Key        types.CandidateKey
	Candidate  types.ModelCandidate
	Outcome    string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Result is the outcome of a successful fallback run.
type Result struct {
	Candidate  types.ModelCandidate
	Completion *adapters.Completion
	Attempts   []Attempt
}

// Resolver resolves candidate keys; satisfied by *CandidateResolver.
type Resolver interface {
	Resolve(ctx context.Context, key types.CandidateKey) (types.ModelCandidate, bool, error)
}

// Orchestrator drives the gateway over a candidate chain, strictly in order,
// stopping at the first success or the first terminal failure.
type Orchestrator struct {
	resolver Resolver
	gateway  adapters.CompletionGateway
	backoff  func(i int) time.Duration
	metrics  *telemetry.Metrics

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator. backoff returns the pause taken
// after a retryable failure of the i-th candidate.
func NewOrchestrator(resolver Resolver, gateway adapters.CompletionGateway, backoff func(i int) time.Duration, metrics *telemetry.Metrics) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		gateway:  gateway,
		backoff:  backoff,
		metrics:  metrics,
		sleep:    sleepCtx,
	}
}

// LinearBackoff returns base + i*step.
func LinearBackoff(base, step time.Duration) func(int) time.Duration {
	return func(i int) time.Duration { return base + time.Duration(i)*step }
}

// Run executes the fallback loop for one turn.
func (o *Orchestrator) Run(ctx context.Context, requestID string, keys []types.CandidateKey, messages []types.Message) (*Result, error) {
	attempted := make(map[string]bool)
	var attempts []Attempt
	var lastErr, storeErr error
	// The pause after a retryable failure is taken only once another
	// candidate is ready to be called.
	var pause time.Duration
	pending := false

	for i, key := range keys {
		cand, ok, err := o.resolver.Resolve(ctx, key)
		if err != nil {
			storeErr = err
			slog.Warn("candidate resolution degraded", "request_id", requestID, "key", key.String(), "error", err)
		}
		if !ok {
			o.record(Attempt{Key: key, Outcome: telemetry.OutcomeSkipped})
			slog.Debug("candidate unresolved, skipping", "request_id", requestID, "key", key.String())
			continue
		}
		if attempted[cand.Signature()] {
			slog.Debug("candidate already attempted, skipping", "request_id", requestID, "key", key.String(), "model", cand.ModelID)
			continue
		}
		attempted[cand.Signature()] = true

		if pending {
			pending = false
			if err := o.sleep(ctx, pause); err != nil {
				return &Result{Attempts: attempts}, fmt.Errorf("%w: %v", ErrExhausted, err)
			}
		}

		start := time.Now()
		completion, err := o.gateway.Complete(ctx, cand, messages)
		attempt := Attempt{Key: key, Candidate: cand, Duration: time.Since(start), Err: err}

		if err == nil {
			attempt.Outcome = telemetry.OutcomeSuccess
			attempt.StatusCode = completion.StatusCode
			attempts = append(attempts, attempt)
			o.record(attempt)
			slog.Info("upstream attempt succeeded",
				"request_id", requestID,
				"attempt", len(attempts),
				"candidate", cand.ID,
				"model", cand.ModelID,
				"duration_ms", attempt.Duration.Milliseconds(),
			)
			return &Result{Candidate: cand, Completion: completion, Attempts: attempts}, nil
		}

		retryable := true
		var upErr *adapters.UpstreamError
		if errors.As(err, &upErr) {
			attempt.StatusCode = upErr.StatusCode
			retryable = upErr.Retryable
		}
		lastErr = err

		if !retryable {
			attempt.Outcome = telemetry.OutcomeRejected
			attempts = append(attempts, attempt)
			o.record(attempt)
			slog.Error("upstream rejected request",
				"request_id", requestID,
				"candidate", cand.ID,
				"model", cand.ModelID,
				"status", attempt.StatusCode,
				"error", err,
			)
			return &Result{Attempts: attempts}, fmt.Errorf("%w: %v", ErrUpstreamRejected, err)
		}

		attempt.Outcome = telemetry.OutcomeRetryable
		attempts = append(attempts, attempt)
		o.record(attempt)
		slog.Warn("upstream attempt failed",
			"request_id", requestID,
			"candidate", cand.ID,
			"model", cand.ModelID,
			"status", attempt.StatusCode,
			"error", err,
		)
		pause, pending = o.backoff(i), true
	}

	if len(attempts) == 0 {
		if storeErr != nil {
			return &Result{}, fmt.Errorf("%w: %v", ErrNoCandidates, storeErr)
		}
		return &Result{}, ErrNoCandidates
	}
	return &Result{Attempts: attempts}, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, len(attempts), lastErr)
}

func (o *Orchestrator) record(a Attempt) {
	if o.metrics == nil {
		return
	}
	name := a.Candidate.ID
	if name == "" {
		name = a.Key.Value
	}
	o.metrics.RecordAttempt(name, a.Outcome, float64(a.Duration.Milliseconds()))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
