package config

import "sort"

// ChainModel is a two-species compartment model fed from a fixed source.
const ChainModel = `name: chain
floating: {S1: 10, S2: 0}
boundary: {Src: 1}
parameters: {k1: 0.2, k2: 0.05}
flows:
  - {id: J0, from: Src, to: S1, rate: k2}
  - {id: J1, from: S1, to: S2, rate: k1}
method: rk4
step: 0.01
`

func simulatorTopology(suffix string) map[string][]string {
	return map[string][]string{
		"time":             {"time" + suffix},
		"floating_species": {"floating_species" + suffix},
		"boundary_species": {"boundary_species" + suffix},
		"model_parameters": {"model_parameters" + suffix},
		"reactions":        {"reactions" + suffix},
	}
}

var Presets = map[string]*Composite{
	"template": {
		Name: "template", TotalTime: 10, Precision: DefaultPrecision,
		Processes: map[string]ProcessConfig{
			"transport1": {Type: "transport", Config: map[string]any{
				"molecules": []any{"A"}, "rates": map[string]any{"A": 0.1}, "external": map[string]any{"A": 10.0},
			}},
			"transport2": {Type: "transport", Config: map[string]any{
				"molecules": []any{"A"}, "rates": map[string]any{"A": 0.05}, "time_step": 0.5,
			}},
		},
		Topology: map[string]map[string][]string{
			"transport1": {"internal": {"cell1", "internal"}, "external": {"environment"}},
			"transport2": {"internal": {"cell2", "internal"}, "external": {"environment"}},
		},
	},
	"compartment": {
		Name: "compartment", TotalTime: 10, Precision: DefaultPrecision, EmitInitial: true,
		Processes: map[string]ProcessConfig{
			"te": {Type: "simulator", Config: map[string]any{"model_source": ChainModel, "time_step": 0.1}},
		},
		Topology: map[string]map[string][]string{
			"te": simulatorTopology(""),
		},
	},
	"pair": {
		Name: "pair", TotalTime: 3, Precision: DefaultPrecision,
		Processes: map[string]ProcessConfig{
			"te1": {Type: "simulator", Config: map[string]any{"model_source": ChainModel}},
			"te2": {Type: "simulator", Config: map[string]any{"model_source": ChainModel}},
		},
		Topology: map[string]map[string][]string{
			"te1": simulatorTopology("_1"),
			"te2": simulatorTopology("_2"),
		},
		InitialState: map[string]any{
			"model_parameters_2": map[string]any{"k1": 0.8},
		},
	},
	"cadence": {
		Name: "cadence", TotalTime: 3, Precision: DefaultPrecision,
		Processes: map[string]ProcessConfig{
			"fast": {Type: "injector", Config: map[string]any{"rates": map[string]any{"A": 1.0}, "time_step": 0.1}},
			"slow": {Type: "injector", Config: map[string]any{"rates": map[string]any{"A": 1.0, "B": 2.0}, "time_step": 0.3}},
		},
		Topology: map[string]map[string][]string{
			"fast": {"target": {"pool"}},
			"slow": {"target": {"pool"}},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Composite {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
