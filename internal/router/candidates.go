package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/types"
)

// maxRegionFallbacks bounds how many regional fallback bindings follow the
// primary key.
const maxRegionFallbacks = 2

const defaultStoreTimeout = 5 * time.Second

// CandidateResolver turns symbolic keys into callable backends. Lists are
// rebuilt from the current config on every call.
type CandidateResolver struct {
	store        ConfigStore
	models       func() *config.ModelsConfig
	upstream     func() config.UpstreamConfig
	storeTimeout time.Duration
}

// NewCandidateResolver bounds every config store query by storeTimeout; a
// non-positive value selects the default.
func NewCandidateResolver(store ConfigStore, models func() *config.ModelsConfig, upstream func() config.UpstreamConfig, storeTimeout time.Duration) *CandidateResolver {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &CandidateResolver{store: store, models: models, upstream: upstream, storeTimeout: storeTimeout}
}

// ParseKey classifies a client-supplied model key.
func (r *CandidateResolver) ParseKey(key string) types.CandidateKey {
	if r.models().IsBinding(key) {
		return types.Alias(key)
	}
	return types.Literal(key)
}

// Keys returns the ordered, de-duplicated fallback chain for a turn:
// the explicit key (or the regional default) followed by regional fallbacks.
func (r *CandidateResolver) Keys(explicit string, isMainland bool) []types.CandidateKey {
	chain := r.models().Chain(isMainland)

	first := types.Alias(chain.Default)
	if explicit != "" {
		first = r.ParseKey(explicit)
	}

	keys := make([]types.CandidateKey, 0, 1+maxRegionFallbacks)
	seen := make(map[types.CandidateKey]bool)
	add := func(k types.CandidateKey) {
		if k.IsZero() || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}

	add(first)
	for i, fb := range chain.Fallbacks {
		if i >= maxRegionFallbacks {
			break
		}
		add(types.Alias(fb))
	}
	return keys
}

// Resolve maps a key to a callable candidate. ok is false when the key
// resolves to nothing or to a backend without an API key. err reports a store
// failure; static defaults are still consulted in that case.
func (r *CandidateResolver) Resolve(ctx context.Context, key types.CandidateKey) (types.ModelCandidate, bool, error) {
	var storeErr error

	target := key.Value
	if key.Kind == types.KeyAlias {
		storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		bound, found, err := r.store.LookupAlias(storeCtx, key.Value)
		cancel()
		if err != nil {
			storeErr = err
		}
		if !found {
			bound = r.models().Bindings[key.Value]
		}
		if bound == "" {
			return types.ModelCandidate{}, false, storeErr
		}
		target = bound
	}

	cand, ok, err := r.resolveLiteral(ctx, target)
	if err != nil {
		storeErr = errors.Join(storeErr, err)
	}
	if !ok {
		return types.ModelCandidate{}, false, storeErr
	}
	cand.Key = key
	return cand, true, storeErr
}

func (r *CandidateResolver) resolveLiteral(ctx context.Context, id string) (types.ModelCandidate, bool, error) {
	upstream := r.upstream()

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	rows, err := r.store.FindModelConfigs(storeCtx, id)
	cancel()
	if err != nil {
		slog.Warn("model config lookup failed, using built-in defaults", "key", id, "error", err)
	}
	for _, row := range rows {
		cand := types.ModelCandidate{
			ID:      row.ID,
			ModelID: row.ModelIdentifier,
			APIKey:  firstNonEmpty(row.APIKey, upstream.APIKey),
			BaseURL: firstNonEmpty(row.BaseURL, upstream.BaseURL),
		}
		if cand.APIKey != "" && cand.ModelID != "" {
			return cand, true, err
		}
	}

	for _, b := range r.models().BuiltinByPriority() {
		if b.ID != id && b.Model != id {
			continue
		}
		cand := types.ModelCandidate{
			ID:      b.ID,
			ModelID: b.Model,
			APIKey:  firstNonEmpty(b.APIKey, upstream.APIKey),
			BaseURL: firstNonEmpty(b.BaseURL, upstream.BaseURL),
		}
		if cand.APIKey != "" {
			return cand, true, err
		}
	}
	return types.ModelCandidate{}, false, err
}

// Available lists enabled backends that currently resolve to a callable
// candidate, persisted configs first.
func (r *CandidateResolver) Available(ctx context.Context) ([]types.ModelCandidate, error) {
	upstream := r.upstream()
	seen := make(map[string]bool)
	var out []types.ModelCandidate

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	rows, err := r.store.ListEnabled(storeCtx)
	cancel()
	for _, row := range rows {
		if seen[row.ID] || firstNonEmpty(row.APIKey, upstream.APIKey) == "" {
			continue
		}
		seen[row.ID] = true
		out = append(out, types.ModelCandidate{Key: types.Literal(row.ID), ID: row.ID, ModelID: row.ModelIdentifier})
	}
	for _, b := range r.models().BuiltinByPriority() {
		if seen[b.ID] || firstNonEmpty(b.APIKey, upstream.APIKey) == "" {
			continue
		}
		seen[b.ID] = true
		out = append(out, types.ModelCandidate{Key: types.Literal(b.ID), ID: b.ID, ModelID: b.Model})
	}
	return out, err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
