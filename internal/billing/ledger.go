// Package billing charges usage credits at most once per task.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/telemetry"
)

// Billing results reported to metrics.
const (
	ResultBilled    = "billed"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

const defaultStoreTimeout = 5 * time.Second

// Charge identifies one billable turn.
type Charge struct {
	TaskID  string
	UserID  string
	ModelID string
}

// Result is the outcome of a charge. NewTotal is nil when the ledger row was
// written but the balance update failed, or when nothing was billed.
type Result struct {
	Billed   bool
	Cost     int64
	NewTotal *int64
}

// Ledger deducts per-model credit costs.
type Ledger struct {
	store        Store
	models       func() *config.ModelsConfig
	storeTimeout time.Duration
	metrics      *telemetry.Metrics
}

// NewLedger bounds each charge's store round trips by storeTimeout; a
// non-positive value selects the default.
func NewLedger(store Store, models func() *config.ModelsConfig, storeTimeout time.Duration, metrics *telemetry.Metrics) *Ledger {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Ledger{store: store, models: models, storeTimeout: storeTimeout, metrics: metrics}
}

// Charge bills the turn identified by c.TaskID. A second charge for the same
// task is a no-op that reports Billed=false.
func (l *Ledger) Charge(ctx context.Context, c Charge) (Result, error) {
	cost := l.models().CreditCost(c.ModelID)
	if cost <= 0 {
		l.record(ResultSkipped, c.ModelID, 0)
		return Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	current, err := l.store.Balance(ctx, c.UserID)
	if err != nil {
		l.record(ResultFailed, c.ModelID, 0)
		return Result{Cost: cost}, fmt.Errorf("read balance: %w", err)
	}
	total := current - cost

	err = l.store.InsertEntry(ctx, Entry{
		ID:     c.TaskID,
		UserID: c.UserID,
		Title:  "Chat: " + c.ModelID,
		Qty:    -cost,
		Total:  total,
	})
	if errors.Is(err, ErrAlreadyBilled) {
		l.record(ResultDuplicate, c.ModelID, 0)
		slog.Info("task already billed", "task_id", c.TaskID, "user_id", c.UserID)
		return Result{Cost: cost}, nil
	}
	if err != nil {
		l.record(ResultFailed, c.ModelID, 0)
		return Result{Cost: cost}, err
	}

	l.record(ResultBilled, c.ModelID, cost)
	newTotal, err := l.store.Deduct(ctx, c.UserID, cost)
	if err != nil {
		return Result{Billed: true, Cost: cost}, fmt.Errorf("ledger row written, balance not updated: %w", err)
	}
	return Result{Billed: true, Cost: cost, NewTotal: &newTotal}, nil
}

func (l *Ledger) record(result, model string, credits int64) {
	if l.metrics != nil {
		l.metrics.RecordBilling(result, model, credits)
	}
}
