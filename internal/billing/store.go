package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlreadyBilled is returned by Store.InsertEntry when a ledger row for the
// task already exists.
var ErrAlreadyBilled = errors.New("task already billed")

// ErrUnknownUser is returned when the user has no credit balance row.
var ErrUnknownUser = errors.New("unknown user")

const uniqueViolation = "23505"

// Entry is one append-only ledger row. ID is the task id.
type Entry struct {
	ID     string
	UserID string
	Title  string
	Qty    int64
	Total  int64
}

// Store is the persistence behind the ledger.
type Store interface {
	Balance(ctx context.Context, userID string) (int64, error)
	InsertEntry(ctx context.Context, e Entry) error
	// Deduct subtracts cost from the user's balance in place and returns the
	// resulting total.
	Deduct(ctx context.Context, userID string, cost int64) (int64, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Balance(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := s.db.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return credits, nil
}

func (s *PGStore) InsertEntry(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO credit_ledger (id, user_id, title, qty, total, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, e.ID, e.UserID, e.Title, e.Qty, e.Total)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyBilled
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *PGStore) Deduct(ctx context.Context, userID string, cost int64) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		UPDATE users SET credits = credits - $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits
	`, userID, cost).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	return total, nil
}
