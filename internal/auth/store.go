package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "persona:session:"

// SessionStore looks up live sessions by token hash. A nil session with a nil
// error means the token is unknown, revoked or expired.
type SessionStore interface {
	Lookup(ctx context.Context, tokenHash string) (*Session, error)
}

// CachedSessionStore implements SessionStore with PostgreSQL + Redis cache.
type CachedSessionStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedSessionStore(db *pgxpool.Pool, rdb *redis.Client) *CachedSessionStore {
	return &CachedSessionStore{db: db, redis: rdb}
}

func (s *CachedSessionStore) Lookup(ctx context.Context, tokenHash string) (*Session, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+tokenHash).Bytes()
		if err == nil {
			var sess Session
			if err := json.Unmarshal(cached, &sess); err == nil {
				return &sess, nil
			}
		}
	}

	sess, err := s.lookupDB(ctx, tokenHash)
	if err != nil || sess == nil {
		return nil, err
	}

	if s.redis != nil {
		ttl := redisCacheTTL
		if remaining := time.Until(sess.ExpiresAt); !sess.ExpiresAt.IsZero() && remaining < ttl {
			ttl = remaining
		}
		if data, err := json.Marshal(sess); err == nil && ttl > 0 {
			s.redis.Set(ctx, redisKeyPrefix+tokenHash, data, ttl)
		}
	}
	return sess, nil
}

// Create stores a new session for userID and returns it.
func (s *CachedSessionStore) Create(ctx context.Context, userID, tokenHash string, ttl time.Duration) (*Session, error) {
	sess := &Session{UserID: userID, ExpiresAt: time.Now().Add(ttl).UTC()}
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, tokenHash, sess.ExpiresAt).Scan(&sess.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *CachedSessionStore) lookupDB(ctx context.Context, tokenHash string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, expires_at
		FROM sessions
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND expires_at > NOW()
	`, tokenHash).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := s.db.Exec(bgCtx, `UPDATE sessions SET last_seen_at = NOW() WHERE id = $1`, sess.ID); err != nil {
			slog.Debug("session touch failed", "session_id", sess.ID, "error", err)
		}
	}()

	return &sess, nil
}
