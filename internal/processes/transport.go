package processes

import (
	"context"
	"fmt"

	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
)

type TransportConfig struct {
	process.Base `yaml:",inline"`
	// Molecules are the members of both the internal and external groups.
	Molecules []string           `yaml:"molecules"`
	Rates     map[string]float64 `yaml:"rates"`
	// External seeds the external pool; absent members default to 1.
	External map[string]float64 `yaml:"external"`
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Base:      process.Base{TimeStep: process.DefaultTimeStep},
		Molecules: []string{"A"},
		Rates:     map[string]float64{"A": 0.1},
	}
}

// Transport moves rate*external[k]*interval of every molecule from the
// external pool into the internal one. Two transports wired to the same
// external path drain one shared pool.
type Transport struct {
	cfg TransportConfig
}

func NewTransport(raw map[string]any) (*Transport, error) {
	cfg := DefaultTransportConfig()
	if err := process.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	if len(cfg.Molecules) == 0 {
		return nil, fmt.Errorf("transport: no molecules configured")
	}
	return &Transport{cfg: cfg}, nil
}

func (t *Transport) Schema() schema.Schema {
	return schema.Schema{
		"internal": schema.Uniform(t.cfg.Molecules, store.LeafSchema{Default: 0.0, Updater: store.NonNegativeAccumulate, Emit: true}),
		"external": schema.Uniform(t.cfg.Molecules, store.LeafSchema{Default: 1.0, Updater: store.NonNegativeAccumulate, Emit: true}),
	}
}

func (t *Transport) InitialState() process.State {
	if len(t.cfg.External) == 0 {
		return nil
	}
	return process.State{"external": process.GroupUpdate(t.cfg.External)}
}

func (t *Transport) TimeStep() float64 { return t.cfg.Step() }

func (t *Transport) Update(_ context.Context, interval float64, s process.State) (process.Update, error) {
	external := s.Group("external")
	in := make(map[string]float64, len(t.cfg.Molecules))
	out := make(map[string]float64, len(t.cfg.Molecules))
	for _, mol := range t.cfg.Molecules {
		moved := t.cfg.Rates[mol] * external[mol] * interval
		if moved > external[mol] {
			moved = external[mol]
		}
		in[mol] = moved
		out[mol] = -moved
	}
	return process.Update{
		"internal": process.GroupUpdate(in),
		"external": process.GroupUpdate(out),
	}, nil
}
