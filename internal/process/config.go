package process

import (
	"fmt"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Base carries the configuration every process understands.
type Base struct {
	TimeStep float64 `yaml:"time_step"`
}

// DefaultTimeStep is used when neither class defaults nor the caller set one.
const DefaultTimeStep = 1.0

func (b Base) Step() float64 {
	if b.TimeStep <= 0 {
		return DefaultTimeStep
	}
	return b.TimeStep
}

// Decode overlays a caller configuration mapping onto into, which must already
// hold the class defaults. Caller keys win, explicit zero values included.
func Decode(raw map[string]any, into any) error {
	if len(raw) == 0 {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Overlay returns override with its zero fields filled from defaults. Unlike
// Decode, a zero override field cannot clear a default.
func Overlay[T any](defaults, override T) (T, error) {
	out := override
	if err := mergo.Merge(&out, defaults); err != nil {
		var zero T
		return zero, fmt.Errorf("merge config: %w", err)
	}
	return out, nil
}
