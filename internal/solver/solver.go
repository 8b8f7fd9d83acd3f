// Package solver integrates systems of ordinary differential equations with
// fixed or adaptive step sizes.
package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Func returns dx/dt at time t. It must not retain or modify x.
type Func func(t float64, x []float64) []float64

// Stepper advances x by one step of size dt.
type Stepper interface {
	Step(f Func, x []float64, t, dt float64) []float64
}

var ErrNonFinite = errors.New("solver: state is not finite")

var steppers = map[string]func() Stepper{
	"euler": func() Stepper { return NewEuler() },
	"rk4":   func() Stepper { return NewRK4() },
	"rk45":  func() Stepper { return NewRK45() },
}

// ByName returns a new stepper for one of Names.
func ByName(name string) (Stepper, error) {
	mk, ok := steppers[name]
	if !ok {
		return nil, fmt.Errorf("solver: unknown method %q", name)
	}
	return mk(), nil
}

func Names() []string {
	out := make([]string, 0, len(steppers))
	for k := range steppers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Integrate advances x from t0 over duration with steps of at most dt; the
// last step is shortened to land exactly on t0+duration. Adaptive steppers
// choose their own steps below dt.
func Integrate(s Stepper, f Func, x []float64, t0, duration, dt float64) ([]float64, error) {
	if duration <= 0 {
		return append([]float64(nil), x...), nil
	}
	if dt <= 0 || dt > duration {
		dt = duration
	}
	if a, ok := s.(*RK45); ok {
		return a.Integrate(f, x, t0, duration, dt)
	}

	end := t0 + duration
	t := t0
	cur := append([]float64(nil), x...)
	for t < end {
		h := math.Min(dt, end-t)
		last := end-(t+h) < 1e-12*math.Max(1, math.Abs(end))
		if last {
			h = end - t
		}
		cur = s.Step(f, cur, t, h)
		if !Finite(cur) {
			return cur, fmt.Errorf("%w at t=%g", ErrNonFinite, t+h)
		}
		if last {
			break
		}
		t += h
	}
	return cur, nil
}

// Finite reports whether every component of x is a finite number.
func Finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
