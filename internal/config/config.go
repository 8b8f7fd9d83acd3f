package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/store"
	"github.com/san-kum/composim/internal/topology"
)

const (
	DefaultName      = "composite"
	DefaultTotalTime = 10.0
	DefaultPrecision = engine.DefaultPrecision
)

var ErrInvalid = errors.New("config: invalid composite")

// ProcessConfig selects a registered process type and its configuration.
type ProcessConfig struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config,omitempty"`
}

// Composite describes a whole simulation: its processes, how their ports are
// wired into the store and how the engine runs them.
type Composite struct {
	Name         string                   `yaml:"name"`
	TotalTime    float64                  `yaml:"total_time"`
	Precision    int                      `yaml:"precision"`
	Parallel     bool                     `yaml:"parallel"`
	Workers      int                      `yaml:"workers,omitempty"`
	SkipFailures bool                     `yaml:"skip_failures"`
	EmitInitial  bool                     `yaml:"emit_initial"`
	Processes    map[string]ProcessConfig `yaml:"processes"`
	// Topology maps process id to port to store path segments. An empty or
	// null path detaches the port.
	Topology     map[string]map[string][]string `yaml:"topology"`
	InitialState map[string]any                 `yaml:"initial_state,omitempty"`
}

func DefaultComposite() *Composite {
	return &Composite{
		Name:      DefaultName,
		TotalTime: DefaultTotalTime,
		Precision: DefaultPrecision,
	}
}

func Load(path string) (*Composite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML composite over DefaultComposite.
func Parse(data []byte) (*Composite, error) {
	cfg := DefaultComposite()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse composite: %w", err)
	}
	return cfg, nil
}

// Marshal encodes cfg in the format Parse reads.
func Marshal(cfg *Composite) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func Save(path string, cfg *Composite) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the description without building any process.
func (c *Composite) Validate() error {
	if !(c.TotalTime > 0) || math.IsInf(c.TotalTime, 0) {
		return fmt.Errorf("%w: total_time must be positive and finite, got %g", ErrInvalid, c.TotalTime)
	}
	if c.Precision < 0 {
		return fmt.Errorf("%w: precision must not be negative", ErrInvalid)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	}
	if len(c.Processes) == 0 {
		return fmt.Errorf("%w: no processes", ErrInvalid)
	}
	for _, id := range c.ProcessIDs() {
		if c.Processes[id].Type == "" {
			return fmt.Errorf("%w: process %q has no type", ErrInvalid, id)
		}
		if _, ok := c.Topology[id]; !ok {
			return fmt.Errorf("%w: process %q has no topology", ErrInvalid, id)
		}
	}
	for id := range c.Topology {
		if _, ok := c.Processes[id]; !ok {
			return fmt.Errorf("%w: topology given for unknown process %q", ErrInvalid, id)
		}
	}
	return nil
}

// ProcessIDs returns the process ids in sorted order.
func (c *Composite) ProcessIDs() []string {
	ids := make([]string, 0, len(c.Processes))
	for id := range c.Processes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wiring converts the YAML topology into store paths.
func (c *Composite) Wiring() topology.Wiring {
	w := make(topology.Wiring, len(c.Topology))
	for id, ports := range c.Topology {
		t := make(topology.Topology, len(ports))
		for port, segs := range ports {
			if len(segs) == 0 {
				t[port] = nil
				continue
			}
			t[port] = store.Path(segs).Clone()
		}
		w[id] = t
	}
	return w
}

// EngineConfig fills the settings the description leaves zero from
// engine.DefaultConfig.
func (c *Composite) EngineConfig() (engine.Config, error) {
	cfg, err := process.Overlay(engine.DefaultConfig(), engine.Config{
		Precision:    c.Precision,
		Parallel:     c.Parallel,
		Workers:      c.Workers,
		SkipFailures: c.SkipFailures,
		EmitInitial:  c.EmitInitial,
	})
	if err != nil {
		return engine.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// Clone deep copies the description.
func (c *Composite) Clone() *Composite {
	out := *c
	out.Processes = make(map[string]ProcessConfig, len(c.Processes))
	for id, p := range c.Processes {
		var raw map[string]any
		if p.Config != nil {
			raw = store.Copy(p.Config).(map[string]any)
		}
		out.Processes[id] = ProcessConfig{Type: p.Type, Config: raw}
	}
	out.Topology = make(map[string]map[string][]string, len(c.Topology))
	for id, ports := range c.Topology {
		m := make(map[string][]string, len(ports))
		for port, segs := range ports {
			if segs != nil {
				segs = append([]string(nil), segs...)
			}
			m[port] = segs
		}
		out.Topology[id] = m
	}
	if c.InitialState != nil {
		out.InitialState = store.Copy(c.InitialState).(map[string]any)
	}
	return &out
}
