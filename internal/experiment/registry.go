package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/composim/internal/compartment"
	"github.com/san-kum/composim/internal/metrics"
	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/processes"
)

// Constructor builds a process from its configuration mapping.
type Constructor func(raw map[string]any) (process.Process, error)

// Registry maps process type names to constructors.
type Registry struct {
	types map[string]Constructor
}

// CompartmentLoader opens compartment models for simulator processes.
func CompartmentLoader(d processes.ModelDescriptor) (processes.Simulator, error) {
	m, err := compartment.Open(d.Path, d.Source)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]Constructor)}

	r.types["injector"] = func(raw map[string]any) (process.Process, error) { return processes.NewInjector(raw) }
	r.types["transport"] = func(raw map[string]any) (process.Process, error) { return processes.NewTransport(raw) }
	r.types["simulator"] = func(raw map[string]any) (process.Process, error) {
		return processes.NewSimulatorProcess(raw, CompartmentLoader)
	}

	return r
}

// Register adds or replaces a process type.
func (r *Registry) Register(name string, fn Constructor) {
	r.types[name] = fn
}

func (r *Registry) Build(typ string, raw map[string]any) (process.Process, error) {
	fn, ok := r.types[typ]
	if !ok {
		return nil, fmt.Errorf("unknown process type: %s", typ)
	}
	return fn(raw)
}

func (r *Registry) ListTypes() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics() []metrics.Metric {
	return metrics.Defaults()
}
