package processes

import (
	"context"
	"fmt"

	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
)

type InjectorConfig struct {
	process.Base `yaml:",inline"`
	// Rates maps target members to the amount added per unit time.
	Rates map[string]float64 `yaml:"rates"`
	Emit  bool               `yaml:"emit"`
}

// Injector adds rate*interval to every member of its target group.
type Injector struct {
	cfg InjectorConfig
}

func DefaultInjectorConfig() InjectorConfig {
	return InjectorConfig{Base: process.Base{TimeStep: process.DefaultTimeStep}, Emit: true}
}

func NewInjector(raw map[string]any) (*Injector, error) {
	cfg := DefaultInjectorConfig()
	if err := process.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("injector: %w", err)
	}
	if len(cfg.Rates) == 0 {
		return nil, fmt.Errorf("injector: no rates configured")
	}
	return &Injector{cfg: cfg}, nil
}

func (i *Injector) Schema() schema.Schema {
	keys := make([]string, 0, len(i.cfg.Rates))
	for k := range i.cfg.Rates {
		keys = append(keys, k)
	}
	return schema.Schema{
		"target": schema.Uniform(keys, store.LeafSchema{Default: 0.0, Updater: store.Accumulate, Emit: i.cfg.Emit}),
	}
}

func (i *Injector) InitialState() process.State { return nil }

func (i *Injector) TimeStep() float64 { return i.cfg.Step() }

func (i *Injector) Update(_ context.Context, interval float64, _ process.State) (process.Update, error) {
	added := make(map[string]float64, len(i.cfg.Rates))
	for k, r := range i.cfg.Rates {
		added[k] = r * interval
	}
	return process.Update{"target": process.GroupUpdate(added)}, nil
}
