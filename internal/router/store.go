package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ModelConfig is a persisted backend configuration row.
type ModelConfig struct {
	ID              string
	ModelIdentifier string
	APIKey          string
	BaseURL         string
	Enabled         bool
	Priority        int
}

// ConfigStore is the read-only persisted model configuration.
type ConfigStore interface {
	// FindModelConfigs returns enabled configs whose id or model identifier
	// equals key, ordered by ascending priority.
	FindModelConfigs(ctx context.Context, key string) ([]ModelConfig, error)
	// LookupAlias returns the target id bound to an alias name.
	LookupAlias(ctx context.Context, name string) (string, bool, error)
	// ListEnabled returns every enabled config ordered by priority.
	ListEnabled(ctx context.Context) ([]ModelConfig, error)
}

// PGConfigStore implements ConfigStore on PostgreSQL.
type PGConfigStore struct {
	db *pgxpool.Pool
}

func NewPGConfigStore(db *pgxpool.Pool) *PGConfigStore {
	return &PGConfigStore{db: db}
}

func (s *PGConfigStore) FindModelConfigs(ctx context.Context, key string) ([]ModelConfig, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, model_identifier, COALESCE(api_key, ''), COALESCE(base_url, ''), enabled, priority
		FROM model_configs
		WHERE enabled AND (id = $1 OR model_identifier = $1)
		ORDER BY priority ASC, id ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query model_configs: %w", err)
	}
	return collectConfigs(rows)
}

func (s *PGConfigStore) ListEnabled(ctx context.Context) ([]ModelConfig, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, model_identifier, COALESCE(api_key, ''), COALESCE(base_url, ''), enabled, priority
		FROM model_configs
		WHERE enabled
		ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query model_configs: %w", err)
	}
	return collectConfigs(rows)
}

func collectConfigs(rows pgx.Rows) ([]ModelConfig, error) {
	configs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ModelConfig, error) {
		var c ModelConfig
		err := row.Scan(&c.ID, &c.ModelIdentifier, &c.APIKey, &c.BaseURL, &c.Enabled, &c.Priority)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan model_configs: %w", err)
	}
	return configs, nil
}

func (s *PGConfigStore) LookupAlias(ctx context.Context, name string) (string, bool, error) {
	var target string
	err := s.db.QueryRow(ctx, `SELECT target_id FROM model_aliases WHERE alias_name = $1`, name).Scan(&target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query model_aliases: %w", err)
	}
	return target, target != "", nil
}
