package config

import (
	"fmt"
	"sort"
)

// ModelsConfig holds the static model catalogue: built-in backends, binding
// slots, regional fallback chains and per-model credit costs.
type ModelsConfig struct {
	Builtin           []BuiltinModel    `yaml:"builtin"`
	Bindings          map[string]string `yaml:"bindings"`
	Regions           RegionChains      `yaml:"regions"`
	Credits           map[string]int64  `yaml:"credits"`
	DefaultCreditCost int64             `yaml:"default_credit_cost"`
}

// BuiltinModel is a backend available even when the config store is empty.
// An empty APIKey inherits the upstream default key.
type BuiltinModel struct {
	ID       string `yaml:"id"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Priority int    `yaml:"priority"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type RegionChains struct {
	Global   RegionChain `yaml:"global"`
	Mainland RegionChain `yaml:"mainland"`
}

// RegionChain names a default binding and its ordered fallback bindings.
type RegionChain struct {
	Default   string   `yaml:"default"`
	Fallbacks []string `yaml:"fallbacks"`
}

// Chain returns the region chain for the client's location.
func (m *ModelsConfig) Chain(isMainland bool) RegionChain {
	if isMainland && m.Regions.Mainland.Default != "" {
		return m.Regions.Mainland
	}
	return m.Regions.Global
}

// IsBinding reports whether name is a configured binding slot.
func (m *ModelsConfig) IsBinding(name string) bool {
	if _, ok := m.Bindings[name]; ok {
		return true
	}
	for _, c := range []RegionChain{m.Regions.Global, m.Regions.Mainland} {
		if c.Default == name {
			return true
		}
		for _, fb := range c.Fallbacks {
			if fb == name {
				return true
			}
		}
	}
	return false
}

// BuiltinByPriority returns enabled built-ins sorted by ascending priority.
func (m *ModelsConfig) BuiltinByPriority() []BuiltinModel {
	out := make([]BuiltinModel, 0, len(m.Builtin))
	for _, b := range m.Builtin {
		if !b.Disabled {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// CreditCost returns the credit cost of one turn served by the model config id.
func (m *ModelsConfig) CreditCost(id string) int64 {
	if c, ok := m.Credits[id]; ok {
		return c
	}
	return m.DefaultCreditCost
}

// Validate checks the catalogue for references that can never resolve.
func (m *ModelsConfig) Validate() error {
	seen := make(map[string]bool, len(m.Builtin))
	for _, b := range m.Builtin {
		if b.ID == "" || b.Model == "" {
			return fmt.Errorf("builtin model requires id and model (got id=%q)", b.ID)
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate builtin model id %q", b.ID)
		}
		seen[b.ID] = true
	}
	if m.Regions.Global.Default == "" {
		return fmt.Errorf("regions.global.default is required")
	}
	for id, c := range m.Credits {
		if c < 0 {
			return fmt.Errorf("negative credit cost for %q", id)
		}
	}
	return nil
}
