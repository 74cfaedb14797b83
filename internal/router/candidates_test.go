package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/af-corp/persona-assistant/internal/config"
	"github.com/af-corp/persona-assistant/internal/types"
)

// fakeStore implements ConfigStore for testing.
type fakeStore struct {
	configs []ModelConfig
	aliases map[string]string
	err     error
}

func (f *fakeStore) FindModelConfigs(_ context.Context, key string) ([]ModelConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ModelConfig
	for _, c := range f.configs {
		if c.Enabled && (c.ID == key || c.ModelIdentifier == key) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) LookupAlias(_ context.Context, name string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	t, ok := f.aliases[name]
	return t, ok, nil
}

func (f *fakeStore) ListEnabled(_ context.Context) ([]ModelConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ModelConfig
	for _, c := range f.configs {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func testModels() *config.ModelsConfig {
	return &config.ModelsConfig{
		Builtin: []config.BuiltinModel{
			{ID: "gpt-mini", Model: "openai/gpt-4o-mini", Priority: 10},
			{ID: "haiku", Model: "anthropic/claude-3-haiku", Priority: 20},
			{ID: "deepseek", Model: "deepseek/deepseek-chat", Priority: 10},
			{ID: "qwen", Model: "qwen/qwen-plus", Priority: 30},
		},
		Bindings: map[string]string{
			"default_model":       "gpt-mini",
			"fallback_model_1":    "haiku",
			"fallback_model_2":    "gpt-mini",
			"default_model_cn":    "deepseek",
			"fallback_model_cn_1": "qwen",
		},
		Regions: config.RegionChains{
			Global:   config.RegionChain{Default: "default_model", Fallbacks: []string{"fallback_model_1", "fallback_model_2", "fallback_model_3"}},
			Mainland: config.RegionChain{Default: "default_model_cn", Fallbacks: []string{"fallback_model_cn_1", "fallback_model_cn_2"}},
		},
		DefaultCreditCost: 1,
	}
}

func newTestResolver(store ConfigStore, apiKey string) *CandidateResolver {
	models := testModels()
	return NewCandidateResolver(store,
		func() *config.ModelsConfig { return models },
		func() config.UpstreamConfig { return config.UpstreamConfig{BaseURL: "http://upstream", APIKey: apiKey} },
		time.Second,
	)
}

func TestKeys_DefaultChain(t *testing.T) {
	r := newTestResolver(&fakeStore{}, "sk")

	keys := r.Keys("", false)
	want := []types.CandidateKey{
		types.Alias("default_model"),
		types.Alias("fallback_model_1"),
		types.Alias("fallback_model_2"),
	}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestKeys_MainlandChain(t *testing.T) {
	r := newTestResolver(&fakeStore{}, "sk")

	keys := r.Keys("", true)
	if len(keys) != 3 || keys[0] != types.Alias("default_model_cn") {
		t.Errorf("unexpected mainland keys %v", keys)
	}
}

func TestKeys_ExplicitLiteralAndDedup(t *testing.T) {
	r := newTestResolver(&fakeStore{}, "sk")

	keys := r.Keys("haiku", false)
	if keys[0] != types.Literal("haiku") {
		t.Errorf("expected literal first key, got %s", keys[0])
	}

	keys = r.Keys("fallback_model_1", false)
	if keys[0] != types.Alias("fallback_model_1") {
		t.Errorf("expected alias first key, got %s", keys[0])
	}
	if len(keys) != 2 {
		t.Errorf("expected duplicate alias to be removed, got %v", keys)
	}
}

func TestResolve_PersistedBeforeBuiltin(t *testing.T) {
	store := &fakeStore{configs: []ModelConfig{
		{ID: "gpt-mini", ModelIdentifier: "openai/gpt-4o-mini-2024", APIKey: "sk-row", Enabled: true, Priority: 5},
	}}
	r := newTestResolver(store, "sk-default")

	cand, ok, err := r.Resolve(context.Background(), types.Literal("gpt-mini"))
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if cand.ModelID != "openai/gpt-4o-mini-2024" || cand.APIKey != "sk-row" {
		t.Errorf("expected persisted config, got %+v", cand)
	}
	if cand.BaseURL != "http://upstream" {
		t.Errorf("expected default base url, got %q", cand.BaseURL)
	}
}

func TestResolve_PriorityOrder(t *testing.T) {
	store := &fakeStore{configs: []ModelConfig{
		{ID: "a", ModelIdentifier: "shared/model", APIKey: "sk-a", Enabled: true, Priority: 1},
		{ID: "b", ModelIdentifier: "shared/model", APIKey: "sk-b", Enabled: true, Priority: 2},
	}}
	r := newTestResolver(store, "")

	cand, ok, _ := r.Resolve(context.Background(), types.Literal("shared/model"))
	if !ok || cand.ID != "a" {
		t.Errorf("expected highest priority row, got %+v", cand)
	}
}

func TestResolve_AliasThroughTable(t *testing.T) {
	store := &fakeStore{aliases: map[string]string{"default_model": "haiku"}}
	r := newTestResolver(store, "sk")

	cand, ok, err := r.Resolve(context.Background(), types.Alias("default_model"))
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if cand.ID != "haiku" || cand.Key != types.Alias("default_model") {
		t.Errorf("expected alias table target haiku, got %+v", cand)
	}
}

func TestResolve_AliasStaticBinding(t *testing.T) {
	r := newTestResolver(&fakeStore{}, "sk")

	cand, ok, _ := r.Resolve(context.Background(), types.Alias("default_model_cn"))
	if !ok || cand.ID != "deepseek" {
		t.Errorf("expected static binding deepseek, got %+v", cand)
	}
}

func TestResolve_SkipsWithoutAPIKey(t *testing.T) {
	r := newTestResolver(&fakeStore{}, "")

	if _, ok, err := r.Resolve(context.Background(), types.Literal("gpt-mini")); ok || err != nil {
		t.Errorf("expected silent skip, got ok=%v err=%v", ok, err)
	}
}

func TestResolve_UnknownKeyAndUnboundAlias(t *testing.T) {
	r := newTestResolver(&fakeStore{}, "sk")

	if _, ok, _ := r.Resolve(context.Background(), types.Literal("nope")); ok {
		t.Error("unknown literal should not resolve")
	}
	if _, ok, _ := r.Resolve(context.Background(), types.Alias("fallback_model_3")); ok {
		t.Error("unbound alias should not resolve")
	}
}

func TestResolve_StoreErrorDegradesToBuiltin(t *testing.T) {
	storeErr := errors.New("connection refused")
	r := newTestResolver(&fakeStore{err: storeErr}, "sk")

	cand, ok, err := r.Resolve(context.Background(), types.Alias("default_model"))
	if !ok || cand.ID != "gpt-mini" {
		t.Errorf("expected builtin via static binding, got %+v ok=%v", cand, ok)
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("expected store error to be reported, got %v", err)
	}
}

func TestAvailable(t *testing.T) {
	store := &fakeStore{configs: []ModelConfig{
		{ID: "custom", ModelIdentifier: "vendor/custom", APIKey: "sk-custom", Enabled: true, Priority: 1},
		{ID: "gpt-mini", ModelIdentifier: "openai/gpt-4o-mini", Enabled: true, Priority: 2},
	}}
	r := newTestResolver(store, "sk")

	got, err := r.Available(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 || got[0].ID != "custom" || got[1].ID != "gpt-mini" {
		t.Errorf("unexpected available list %+v", got)
	}
}

// stuckStore never answers until its context is done.
type stuckStore struct{}

func (stuckStore) FindModelConfigs(ctx context.Context, _ string) ([]ModelConfig, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stuckStore) LookupAlias(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (stuckStore) ListEnabled(ctx context.Context) ([]ModelConfig, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolve_StoreQueriesAreBounded(t *testing.T) {
	models := testModels()
	r := NewCandidateResolver(stuckStore{},
		func() *config.ModelsConfig { return models },
		func() config.UpstreamConfig { return config.UpstreamConfig{BaseURL: "http://upstream", APIKey: "sk"} },
		20*time.Millisecond,
	)

	start := time.Now()
	cand, ok, err := r.Resolve(context.Background(), types.Alias("default_model"))
	if time.Since(start) > 2*time.Second {
		t.Fatalf("resolve took %s, store deadline not applied", time.Since(start))
	}
	if !ok || cand.ID != "gpt-mini" {
		t.Fatalf("expected built-in gpt-mini, got %+v ok=%v", cand, ok)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error to be reported, got %v", err)
	}
}
