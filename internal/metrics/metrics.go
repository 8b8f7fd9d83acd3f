// Package metrics summarises a run by observing its synchronization points.
package metrics

import (
	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/process"
)

// Metric is an engine observer reducing a run to one number.
type Metric interface {
	engine.Observer
	Name() string
	Value() float64
	Reset()
}

// Defaults returns the metrics collected by every experiment.
func Defaults() []Metric {
	return []Metric{
		NewSyncPoints(),
		NewInvocations(),
		NewFailures(),
		NewStability(1e6),
		NewMass(),
	}
}

// Observers adapts metrics for engine.WithObserver.
func Observers(ms []Metric) []engine.Observer {
	out := make([]engine.Observer, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

// Collect reads every metric value keyed by name.
func Collect(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func numeric(values map[string]any, fn func(path string, v float64)) {
	for path, v := range values {
		if f, ok := process.AsFloat(v); ok {
			fn(path, f)
		}
	}
}
