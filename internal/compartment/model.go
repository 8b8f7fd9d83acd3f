// Package compartment implements a small linear compartment-flow simulator.
//
// A model is a set of named amounts (floating species change over time,
// boundary species are held fixed), named parameters and first-order flows.
// A flow moves k*amount(from) per unit time from one compartment to another;
// an empty from makes it a constant inflow of k, an empty to a sink.
//
// Models are described in YAML:
//
//	name: decay
//	floating: {A: 10, B: 0}
//	boundary: {X: 1}
//	parameters: {k1: 0.5}
//	flows:
//	  - {id: R1, from: A, to: B, rate: k1}
//	  - {id: R2, from: X, to: A, rate: 0.1}
//	method: rk4
//	step: 0.01
package compartment

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/composim/internal/solver"
)

var (
	ErrDiverged    = errors.New("compartment: integration diverged")
	ErrUnknownName = errors.New("compartment: unknown name")
	ErrInvalid     = errors.New("compartment: invalid model")
)

type Flow struct {
	ID   string `yaml:"id"`
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
	// Rate is a parameter name or a numeric literal.
	Rate string `yaml:"rate"`
}

type Spec struct {
	Name       string             `yaml:"name"`
	Floating   map[string]float64 `yaml:"floating"`
	Boundary   map[string]float64 `yaml:"boundary,omitempty"`
	Parameters map[string]float64 `yaml:"parameters,omitempty"`
	Flows      []Flow             `yaml:"flows"`
	Method     string             `yaml:"method,omitempty"`
	Step       float64            `yaml:"step,omitempty"`
}

const DefaultStep = 0.01

// Parse decodes a YAML model description.
func Parse(data []byte) (*Spec, error) {
	spec := &Spec{Method: "rk4", Step: DefaultStep}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return spec, nil
}

func ParseFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data)
}

// Open loads a model from a file path or, when source is not empty, from an
// inline YAML description.
func Open(path, source string) (*Model, error) {
	var (
		spec *Spec
		err  error
	)
	switch {
	case source != "":
		spec, err = Parse([]byte(source))
	case path != "":
		spec, err = ParseFile(path)
	default:
		return nil, fmt.Errorf("%w: neither a model path nor a model source was given", ErrInvalid)
	}
	if err != nil {
		return nil, err
	}
	return New(spec)
}

type flow struct {
	id       string
	from, to string
	param    string
	literal  float64
}

// Model is a compiled Spec. It is not safe for concurrent use.
type Model struct {
	name       string
	floating   []string
	index      map[string]int
	amounts    []float64
	boundary   map[string]float64
	parameters map[string]float64
	flows      []flow
	stepper    solver.Stepper
	step       float64
}

func New(spec *Spec) (*Model, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spec", ErrInvalid)
	}
	m := &Model{
		name:       spec.Name,
		index:      make(map[string]int, len(spec.Floating)),
		boundary:   make(map[string]float64, len(spec.Boundary)),
		parameters: make(map[string]float64, len(spec.Parameters)),
		step:       spec.Step,
	}
	if m.step <= 0 {
		m.step = DefaultStep
	}
	method := spec.Method
	if method == "" {
		method = "rk4"
	}
	stepper, err := solver.ByName(method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	m.stepper = stepper

	m.floating = sortedKeys(spec.Floating)
	m.amounts = make([]float64, len(m.floating))
	for i, id := range m.floating {
		m.index[id] = i
		m.amounts[i] = spec.Floating[id]
	}
	for id, v := range spec.Boundary {
		if _, dup := m.index[id]; dup {
			return nil, fmt.Errorf("%w: %q is both floating and boundary", ErrInvalid, id)
		}
		m.boundary[id] = v
	}
	for id, v := range spec.Parameters {
		if m.isSpecies(id) {
			return nil, fmt.Errorf("%w: parameter %q shadows a species", ErrInvalid, id)
		}
		m.parameters[id] = v
	}

	seen := make(map[string]bool, len(spec.Flows))
	for _, f := range spec.Flows {
		if f.ID == "" {
			return nil, fmt.Errorf("%w: flow without id", ErrInvalid)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("%w: duplicate flow %q", ErrInvalid, f.ID)
		}
		seen[f.ID] = true
		for _, end := range []string{f.From, f.To} {
			if end != "" && !m.isSpecies(end) {
				return nil, fmt.Errorf("%w: flow %q references unknown species %q", ErrInvalid, f.ID, end)
			}
		}
		cf := flow{id: f.ID, from: f.From, to: f.To}
		if _, ok := m.parameters[f.Rate]; ok {
			cf.param = f.Rate
		} else {
			k, err := strconv.ParseFloat(f.Rate, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: flow %q rate %q is neither a parameter nor a number", ErrInvalid, f.ID, f.Rate)
			}
			cf.literal = k
		}
		m.flows = append(m.flows, cf)
	}
	sort.Slice(m.flows, func(i, j int) bool { return m.flows[i].id < m.flows[j].id })
	return m, nil
}

func (m *Model) isSpecies(id string) bool {
	if _, ok := m.index[id]; ok {
		return true
	}
	_, ok := m.boundary[id]
	return ok
}

func (m *Model) Name() string { return m.name }

func (m *Model) FloatingSpecies() []string { return append([]string(nil), m.floating...) }

func (m *Model) BoundarySpecies() []string { return sortedKeys(m.boundary) }

func (m *Model) Parameters() []string { return sortedKeys(m.parameters) }

func (m *Model) Reactions() []string {
	out := make([]string, len(m.flows))
	for i, f := range m.flows {
		out[i] = f.id
	}
	return out
}

// Set overwrites a species amount or a parameter value.
func (m *Model) Set(name string, value float64) error {
	if i, ok := m.index[name]; ok {
		m.amounts[i] = value
		return nil
	}
	if _, ok := m.boundary[name]; ok {
		m.boundary[name] = value
		return nil
	}
	if _, ok := m.parameters[name]; ok {
		m.parameters[name] = value
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownName, name)
}

// Get reads a species amount, a parameter value or the current flux of a
// flow.
func (m *Model) Get(name string) (float64, error) {
	if i, ok := m.index[name]; ok {
		return m.amounts[i], nil
	}
	if v, ok := m.boundary[name]; ok {
		return v, nil
	}
	if v, ok := m.parameters[name]; ok {
		return v, nil
	}
	for _, f := range m.flows {
		if f.id == name {
			return m.flux(f, m.amounts), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownName, name)
}

func (m *Model) amount(id string, x []float64) float64 {
	if i, ok := m.index[id]; ok {
		return x[i]
	}
	return m.boundary[id]
}

func (m *Model) flux(f flow, x []float64) float64 {
	k := f.literal
	if f.param != "" {
		k = m.parameters[f.param]
	}
	if f.from == "" {
		return k
	}
	return k * m.amount(f.from, x)
}

func (m *Model) derivative(_ float64, x []float64) []float64 {
	dx := make([]float64, len(x))
	for _, f := range m.flows {
		v := m.flux(f, x)
		if i, ok := m.index[f.from]; ok {
			dx[i] -= v
		}
		if i, ok := m.index[f.to]; ok {
			dx[i] += v
		}
	}
	return dx
}

// Advance integrates the floating species from time from over duration and
// returns the new time. On divergence the amounts are left unchanged.
func (m *Model) Advance(from, duration float64) (float64, error) {
	if duration <= 0 {
		return from, nil
	}
	x, err := solver.Integrate(m.stepper, m.derivative, m.amounts, from, duration, m.step)
	if err != nil {
		return from, fmt.Errorf("%w: model %q from t=%g: %w", ErrDiverged, m.name, from, err)
	}
	m.amounts = x
	return from + duration, nil
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
