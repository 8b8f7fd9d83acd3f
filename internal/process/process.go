// Package process defines the contract every simulation unit implements.
//
// A process declares its ports with [Process.Schema] and is advanced by the
// engine through [Process.Update]. It never touches the shared store: the
// engine hands it a [State] view restricted to its own ports and integrates
// the returned [Update] with each leaf's updater.
//
// # Example
//
//	type Decay struct{ rate, step float64 }
//
//	func (d *Decay) Schema() schema.Schema {
//	    return schema.Schema{"x": schema.Leaf(1.0, store.Accumulate, true)}
//	}
//	func (d *Decay) InitialState() process.State { return nil }
//	func (d *Decay) TimeStep() float64          { return d.step }
//	func (d *Decay) Update(_ context.Context, dt float64, s process.State) (process.Update, error) {
//	    return process.Update{"x": -d.rate * s.Float("x") * dt}, nil
//	}
package process

import (
	"context"

	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
)

// State is a read-only view of a process's ports, keyed by port name. Group
// ports hold map[string]any of their members.
type State map[string]any

// Update is a partial update keyed by port name, shaped like State.
type Update map[string]any

type Process interface {
	// Schema is called once, when the process is registered in a composite.
	Schema() schema.Schema
	// InitialState may return nil to fall back to schema defaults.
	InitialState() State
	// TimeStep is the simulated time between two invocations.
	TimeStep() float64
	// Update advances the process by interval given the current view of its
	// ports. interval is always positive.
	Update(ctx context.Context, interval float64, states State) (Update, error)
}

// Float reads a numeric leaf port, returning 0 when absent.
func (s State) Float(port string) float64 {
	f, _ := AsFloat(s[port])
	return f
}

// Group reads a group port as a map of floats. Non-numeric members are skipped.
func (s State) Group(port string) map[string]float64 {
	m, _ := s[port].(map[string]any)
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if f, ok := AsFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

// GroupUpdate converts a float map into the shape expected for a group port.
func GroupUpdate(values map[string]float64) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// Clone deep copies a state so the caller cannot reach the original.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return State(store.Copy(map[string]any(s)).(map[string]any))
}
