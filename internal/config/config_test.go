package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/store"
	"github.com/san-kum/composim/internal/topology"
)

func TestDefaultComposite(t *testing.T) {
	cfg := DefaultComposite()

	if cfg.TotalTime <= 0 {
		t.Error("total time should be positive")
	}
	if cfg.Precision != engine.DefaultPrecision {
		t.Errorf("expected precision %d, got %d", engine.DefaultPrecision, cfg.Precision)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Error("a composite without processes should not validate")
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
name: mine
processes:
  inj: {type: injector, config: {rates: {A: 1}}}
topology:
  inj:
    target: [cell, pool]
    other: []
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.TotalTime != DefaultTotalTime {
		t.Errorf("total time = %v, want default", cfg.TotalTime)
	}
	if cfg.Name != "mine" {
		t.Errorf("name = %q", cfg.Name)
	}

	want := topology.Wiring{"inj": {"target": store.Path{"cell", "pool"}, "other": nil}}
	if diff := cmp.Diff(want, cfg.Wiring()); diff != "" {
		t.Errorf("wiring mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid composite rejected: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	want := GetPreset("cadence")
	if err := Save(path, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Name != want.Name || got.TotalTime != want.TotalTime {
		t.Errorf("loaded %+v, want %+v", got, want)
	}
	if diff := cmp.Diff(want.Wiring(), got.Wiring()); diff != "" {
		t.Errorf("wiring mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Composite)
	}{
		{"zero total time", func(c *Composite) { c.TotalTime = 0 }},
		{"NaN total time", func(c *Composite) { c.TotalTime = math.NaN() }},
		{"infinite total time", func(c *Composite) { c.TotalTime = math.Inf(1) }},
		{"negative precision", func(c *Composite) { c.Precision = -1 }},
		{"negative workers", func(c *Composite) { c.Workers = -2 }},
		{"missing type", func(c *Composite) { c.Processes["fast"] = ProcessConfig{} }},
		{"missing topology", func(c *Composite) { delete(c.Topology, "fast") }},
		{"unknown topology", func(c *Composite) { c.Topology["ghost"] = map[string][]string{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetPreset("cadence")
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestGetPreset(t *testing.T) {
	for _, name := range ListPresets() {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			if cfg == nil {
				t.Fatal("expected preset, got nil")
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("preset does not validate: %v", err)
			}
		})
	}
}

func TestGetPresetIsCopy(t *testing.T) {
	cfg := GetPreset("template")
	cfg.Processes["transport1"].Config["rates"].(map[string]any)["A"] = 99.0
	cfg.Topology["transport1"]["external"][0] = "elsewhere"

	again := GetPreset("template")
	if again.Processes["transport1"].Config["rates"].(map[string]any)["A"] != 0.1 {
		t.Error("preset process config mutated through a copy")
	}
	if again.Topology["transport1"]["external"][0] != "environment" {
		t.Error("preset topology mutated through a copy")
	}
}

func TestGetPresetNotFound(t *testing.T) {
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	want := []string{"cadence", "compartment", "pair", "template"}
	if diff := cmp.Diff(want, ListPresets()); diff != "" {
		t.Errorf("presets mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := GetPreset("compartment")
	cfg.Parallel = true
	got, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := engine.Config{Precision: DefaultPrecision, Parallel: true, EmitInitial: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("engine config mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineConfigFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
precision: 0
skip_failures: true
processes:
  inj: {type: injector, config: {rates: {A: 1}}}
topology:
  inj: {target: [pool]}
`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := engine.DefaultConfig()
	want.SkipFailures = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("engine config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNaNTotalTimeIsInvalid(t *testing.T) {
	cfg, err := Parse([]byte(`
total_time: .nan
processes:
  inj: {type: injector, config: {rates: {A: 1}}}
topology:
  inj: {target: [pool]}
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}
