package store

import (
	"fmt"
	"math"
)

// ReduceFunc combines the current leaf value with an incoming delta.
type ReduceFunc func(current, delta any) (any, error)

// Updater is the merge strategy owned by a leaf. Two updaters are considered
// compatible when their names match.
type Updater struct {
	Name   string
	Reduce ReduceFunc
}

func (u Updater) IsZero() bool { return u.Name == "" && u.Reduce == nil }

func (u Updater) String() string { return u.Name }

// Reducer builds a custom updater. fn should be associative and commutative
// when several processes write the same leaf within one step; otherwise the
// result depends on the order writers are applied (ascending process id).
func Reducer(name string, fn ReduceFunc) Updater {
	return Updater{Name: name, Reduce: fn}
}

var (
	Set                   = Updater{Name: "set", Reduce: setReduce}
	Accumulate            = Updater{Name: "accumulate", Reduce: accumulateReduce}
	NonNegativeAccumulate = Updater{Name: "nonnegative_accumulate", Reduce: nonNegativeReduce}
	Null                  = Updater{Name: "null", Reduce: nullReduce}
)

var builtins = map[string]Updater{
	Set.Name:                   Set,
	Accumulate.Name:            Accumulate,
	NonNegativeAccumulate.Name: NonNegativeAccumulate,
	Null.Name:                  Null,
}

// LookupUpdater resolves a built-in updater by name.
func LookupUpdater(name string) (Updater, bool) {
	u, ok := builtins[name]
	return u, ok
}

func setReduce(_, delta any) (any, error) { return Copy(delta), nil }

func nullReduce(current, _ any) (any, error) { return current, nil }

func accumulateReduce(current, delta any) (any, error) {
	switch d := delta.(type) {
	case map[string]float64:
		out := make(map[string]float64, len(d))
		if cur, ok := current.(map[string]float64); ok {
			for k, v := range cur {
				out[k] = v
			}
		} else if current != nil {
			return nil, fmt.Errorf("cannot accumulate map into %T", current)
		}
		for k, v := range d {
			out[k] += v
		}
		return out, nil
	case int:
		if c, ok := current.(int); ok {
			return c + d, nil
		}
	}
	dv, ok := toFloat(delta)
	if !ok {
		return nil, fmt.Errorf("cannot accumulate %T", delta)
	}
	if current == nil {
		return dv, nil
	}
	cv, ok := toFloat(current)
	if !ok {
		return nil, fmt.Errorf("cannot accumulate into %T", current)
	}
	return cv + dv, nil
}

func nonNegativeReduce(current, delta any) (any, error) {
	v, err := accumulateReduce(current, delta)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case float64:
		return math.Max(x, 0), nil
	case int:
		return max(x, 0), nil
	case map[string]float64:
		for k, f := range x {
			x[k] = math.Max(f, 0)
		}
		return x, nil
	}
	return v, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

// Copy returns a deep copy of the container types a leaf may hold. Scalars are
// returned as is.
func Copy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Copy(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Copy(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	}
	return v
}
