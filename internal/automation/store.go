package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTaskOwnedByOther is returned by Store.Insert when the task id already
// carries an automation of a different user.
var ErrTaskOwnedByOther = errors.New("task id belongs to another user")

// Store persists automations.
type Store interface {
	// Insert stores a new automation keyed by its task id. When the same user
	// already has an automation for the task it is returned with created=false.
	Insert(ctx context.Context, a *Automation) (stored *Automation, created bool, err error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, a *Automation) (*Automation, bool, error) {
	todos, err := json.Marshal(a.Todos)
	if err != nil {
		return nil, false, fmt.Errorf("marshal todos: %w", err)
	}
	preview, err := json.Marshal(a.PreviewConfig)
	if err != nil {
		return nil, false, fmt.Errorf("marshal preview config: %w", err)
	}

	var id string
	err = s.db.QueryRow(ctx, `
		INSERT INTO automations
			(id, user_id, task_id, name, enabled, cron, timezone, todos, preview_config, confirm_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id
	`, a.ID, a.UserID, a.TaskID, a.Name, a.Enabled, a.Cron, a.Timezone, todos, preview, a.ConfirmAt, a.CreatedAt).Scan(&id)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert automation: %w", err)
	}

	existing, err := s.byTaskID(ctx, a.TaskID, a.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrTaskOwnedByOther
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PGStore) byTaskID(ctx context.Context, taskID, userID string) (*Automation, error) {
	var a Automation
	var todos, preview []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, task_id, name, enabled, cron, timezone, todos, preview_config,
		       confirm_at, last_run_at, COALESCE(last_run_status, ''), created_at, updated_at
		FROM automations
		WHERE task_id = $1 AND user_id = $2
	`, taskID, userID).Scan(
		&a.ID, &a.UserID, &a.TaskID, &a.Name, &a.Enabled, &a.Cron, &a.Timezone, &todos, &preview,
		&a.ConfirmAt, &a.LastRunAt, &a.LastRunStatus, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query automation by task: %w", err)
	}
	if err := json.Unmarshal(todos, &a.Todos); err != nil {
		return nil, fmt.Errorf("unmarshal todos: %w", err)
	}
	if err := json.Unmarshal(preview, &a.PreviewConfig); err != nil {
		return nil, fmt.Errorf("unmarshal preview config: %w", err)
	}
	return &a, nil
}
