// Package composite assembles processes and their topologies into one
// simulation graph with a merged store schema and initial state.
//
// Build is deterministic: processes are processed in ascending id order, so
// the merged schema and the initial state do not depend on map iteration.
package composite

import (
	"fmt"
	"sort"

	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
	"github.com/san-kum/composim/internal/topology"
)

// Composite is immutable once built.
type Composite struct {
	processes map[string]process.Process
	schemas   map[string]schema.Schema
	wiring    topology.Wiring
	ids       []string
	template  *store.Store
}

type options struct {
	initial map[string]any
}

type Option func(*options)

// WithInitialState overrides the computed initial state. Keys must address
// declared nodes.
func WithInitialState(state map[string]any) Option {
	return func(o *options) { o.initial = state }
}

// Build validates every topology, merges the schemas and computes the initial
// state: schema defaults, then each process's InitialState in id order, then
// the WithInitialState overrides.
func Build(processes map[string]process.Process, wiring topology.Wiring, opts ...Option) (*Composite, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(processes) == 0 {
		return nil, &topology.TopologyError{Reason: "composite has no processes"}
	}

	ids := make([]string, 0, len(processes))
	for id := range processes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for id := range wiring {
		if _, ok := processes[id]; !ok {
			return nil, &topology.TopologyError{Process: id, Reason: "topology given for unknown process"}
		}
	}

	c := &Composite{
		processes: make(map[string]process.Process, len(processes)),
		schemas:   make(map[string]schema.Schema, len(processes)),
		wiring:    make(topology.Wiring, len(processes)),
		ids:       ids,
		template:  store.New(),
	}

	for _, id := range ids {
		p := processes[id]
		if p == nil {
			return nil, &topology.TopologyError{Process: id, Reason: "nil process"}
		}
		s := p.Schema()
		t, ok := wiring[id]
		if !ok {
			return nil, &topology.TopologyError{Process: id, Reason: "process has no topology"}
		}
		if err := topology.Validate(id, s, t); err != nil {
			return nil, err
		}
		if err := topology.Declare(c.template, id, s, t); err != nil {
			return nil, err
		}
		c.processes[id] = p
		c.schemas[id] = s
		c.wiring[id] = cloneTopology(t)
	}

	for _, id := range ids {
		initial := c.processes[id].InitialState()
		if len(initial) == 0 {
			continue
		}
		if err := c.seed(id, initial); err != nil {
			return nil, err
		}
	}

	if len(o.initial) > 0 {
		if err := c.template.SetTree(nil, o.initial); err != nil {
			return nil, fmt.Errorf("initial state: %w", err)
		}
	}
	return c, nil
}

// seed writes a process's initial state through its topology. Detached ports
// and members the schema does not declare are ignored, since InitialState
// is advisory.
func (c *Composite) seed(id string, initial process.State) error {
	s, t := c.schemas[id], c.wiring[id]
	for port, v := range initial {
		if _, ok := s[port]; !ok {
			continue
		}
		if err := c.seedPort(s, t, port, nil, v); err != nil {
			return fmt.Errorf("initial state of %q: %w", id, err)
		}
	}
	return nil
}

func (c *Composite) seedPort(s schema.Schema, t topology.Topology, port string, rel store.Path, v any) error {
	p, ok := s.Lookup(port, rel)
	if !ok {
		return nil
	}
	if p.Kind == schema.KindLeaf {
		abs, ok := t.Resolve(port, rel)
		if !ok {
			return nil
		}
		return c.template.Set(abs, v)
	}
	switch m := v.(type) {
	case map[string]any:
		for k, sub := range m {
			if err := c.seedPort(s, t, port, rel.Join(k), sub); err != nil {
				return err
			}
		}
	case map[string]float64:
		for k, sub := range m {
			if err := c.seedPort(s, t, port, rel.Join(k), sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("port %q expects a map, got %T", port, v)
	}
	return nil
}

func cloneTopology(t topology.Topology) topology.Topology {
	out := make(topology.Topology, len(t))
	for k, p := range t {
		out[k] = p.Clone()
	}
	return out
}

// IDs returns the process ids in processing order.
func (c *Composite) IDs() []string { return append([]string(nil), c.ids...) }

func (c *Composite) Process(id string) (process.Process, bool) {
	p, ok := c.processes[id]
	return p, ok
}

// Schema returns a copy of the schema of process id.
func (c *Composite) Schema(id string) schema.Schema { return c.schemas[id].Clone() }

// Topology returns a copy of the topology of process id.
func (c *Composite) Topology(id string) topology.Topology {
	return cloneTopology(c.wiring[id])
}

// NewStore returns a fresh store seeded with the initial state.
func (c *Composite) NewStore() *store.Store { return c.template.Clone() }

// InitialState returns the merged initial state as nested maps.
func (c *Composite) InitialState() map[string]any { return c.template.Snapshot() }

// Leaves lists the merged store schema.
func (c *Composite) Leaves() []store.LeafEntry { return c.template.Leaves() }

// Writers returns, for every shared leaf path, the ids of the processes
// wired to it. Paths with a single writer are omitted.
func (c *Composite) Writers() map[string][]string {
	seen := make(map[string][]string)
	for _, id := range c.ids {
		for _, l := range c.schemas[id].Leaves() {
			abs, ok := c.wiring[id].Resolve(l.Port, l.Rel)
			if !ok {
				continue
			}
			key := abs.String()
			seen[key] = append(seen[key], id)
		}
	}
	for k, ids := range seen {
		if len(ids) < 2 {
			delete(seen, k)
		}
	}
	return seen
}
