package processes

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
)

// ModelDescriptor points at a model either on disk or inline.
type ModelDescriptor struct {
	Path   string `yaml:"model_path"`
	Source string `yaml:"model_source"`
}

// Simulator is an external numerical simulator driven by [SimulatorProcess].
type Simulator interface {
	FloatingSpecies() []string
	BoundarySpecies() []string
	Parameters() []string
	Reactions() []string

	Set(name string, value float64) error
	Get(name string) (float64, error)
	// Advance integrates from time from over duration and returns the new
	// time.
	Advance(from, duration float64) (float64, error)
}

// Loader builds a simulator from a model descriptor.
type Loader func(d ModelDescriptor) (Simulator, error)

var ErrNoLoader = errors.New("processes: no simulator loader configured")

// Ports of a SimulatorProcess.
const (
	PortTime       = "time"
	PortFloating   = "floating_species"
	PortBoundary   = "boundary_species"
	PortParameters = "model_parameters"
	PortReactions  = "reactions"
)

// inputPorts are pushed into the simulator before every step.
var inputPorts = []string{PortFloating, PortBoundary, PortParameters}

type SimulatorConfig struct {
	process.Base    `yaml:",inline"`
	ModelDescriptor `yaml:",inline"`
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{Base: process.Base{TimeStep: 0.1}}
}

// SimulatorProcess wraps a Simulator as a process. The simulator keeps its
// own state between steps, so one instance must not be shared between
// composites.
type SimulatorProcess struct {
	cfg       SimulatorConfig
	sim       Simulator
	floating  []string
	boundary  []string
	params    []string
	reactions []string
	initial   process.State
}

func NewSimulatorProcess(raw map[string]any, load Loader) (*SimulatorProcess, error) {
	if load == nil {
		return nil, ErrNoLoader
	}
	cfg := DefaultSimulatorConfig()
	if err := process.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	sim, err := load(cfg.ModelDescriptor)
	if err != nil {
		return nil, fmt.Errorf("simulator: load model: %w", err)
	}

	p := &SimulatorProcess{
		cfg:       cfg,
		sim:       sim,
		floating:  sorted(sim.FloatingSpecies()),
		boundary:  sorted(sim.BoundarySpecies()),
		params:    sorted(sim.Parameters()),
		reactions: sim.Reactions(),
	}
	p.initial = process.State{}
	for port, ids := range map[string][]string{PortFloating: p.floating, PortBoundary: p.boundary, PortParameters: p.params} {
		values := make(map[string]float64, len(ids))
		for _, id := range ids {
			v, err := sim.Get(id)
			if err != nil {
				return nil, fmt.Errorf("simulator: read %q: %w", id, err)
			}
			values[id] = v
		}
		p.initial[port] = process.GroupUpdate(values)
	}
	return p, nil
}

func (p *SimulatorProcess) Schema() schema.Schema {
	member := store.LeafSchema{Default: 1.0, Updater: store.Set, Emit: true}
	return schema.Schema{
		PortTime:       schema.Leaf(0.0, store.Set, false),
		PortFloating:   schema.Uniform(p.floating, member),
		PortBoundary:   schema.Uniform(p.boundary, member),
		PortParameters: schema.Uniform(p.params, member),
		PortReactions:  schema.Leaf(append([]string(nil), p.reactions...), store.Set, false),
	}
}

// InitialState reports the model's own species amounts and parameter values.
func (p *SimulatorProcess) InitialState() process.State { return p.initial.Clone() }

func (p *SimulatorProcess) TimeStep() float64 { return p.cfg.Step() }

func (p *SimulatorProcess) Update(ctx context.Context, interval float64, s process.State) (process.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, port := range inputPorts {
		values := s.Group(port)
		ids := make([]string, 0, len(values))
		for id := range values {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := p.sim.Set(id, values[id]); err != nil {
				return nil, fmt.Errorf("set %q: %w", id, err)
			}
		}
	}

	now, err := p.sim.Advance(s.Float(PortTime), interval)
	if err != nil {
		return nil, err
	}

	floating := make(map[string]float64, len(p.floating))
	for _, id := range p.floating {
		v, err := p.sim.Get(id)
		if err != nil {
			return nil, fmt.Errorf("get %q: %w", id, err)
		}
		floating[id] = v
	}
	return process.Update{
		PortTime:     now,
		PortFloating: process.GroupUpdate(floating),
	}, nil
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
