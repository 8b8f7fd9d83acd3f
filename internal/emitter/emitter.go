// Package emitter records the leaves marked emit after every synchronization
// point.
package emitter

import (
	"context"
	"log/slog"
	"sort"

	"github.com/san-kum/composim/internal/store"
)

// Emitter receives one snapshot of the emitted leaves per synchronization
// point. values is keyed by "/"-joined store path and owned by the callee.
type Emitter interface {
	Emit(t float64, values map[string]any)
}

// Record is one row of a timeseries.
type Record struct {
	Time   float64        `json:"time" yaml:"time"`
	Values map[string]any `json:"values" yaml:"values"`
}

// Timeseries is the in-memory, append-only emitter owned by the engine.
type Timeseries struct {
	records []Record
	paths   map[string]struct{}
}

func NewTimeseries() *Timeseries {
	return &Timeseries{paths: make(map[string]struct{})}
}

func (ts *Timeseries) Emit(t float64, values map[string]any) {
	for p := range values {
		ts.paths[p] = struct{}{}
	}
	ts.records = append(ts.records, Record{Time: t, Values: values})
}

func (ts *Timeseries) Len() int { return len(ts.records) }

// Records returns copies of every record in time order.
func (ts *Timeseries) Records() []Record {
	out := make([]Record, len(ts.records))
	for i, r := range ts.records {
		out[i] = Record{Time: r.Time, Values: store.Copy(r.Values).(map[string]any)}
	}
	return out
}

// Last returns the most recent record.
func (ts *Timeseries) Last() (Record, bool) {
	if len(ts.records) == 0 {
		return Record{}, false
	}
	r := ts.records[len(ts.records)-1]
	return Record{Time: r.Time, Values: store.Copy(r.Values).(map[string]any)}, true
}

func (ts *Timeseries) Times() []float64 {
	out := make([]float64, len(ts.records))
	for i, r := range ts.records {
		out[i] = r.Time
	}
	return out
}

// Paths lists every emitted path in sorted order.
func (ts *Timeseries) Paths() []string {
	out := make([]string, 0, len(ts.paths))
	for p := range ts.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Series returns the values of one path aligned with Times. Records that lack
// the path hold nil.
func (ts *Timeseries) Series(path string) []any {
	out := make([]any, len(ts.records))
	for i, r := range ts.records {
		out[i] = store.Copy(r.Values[path])
	}
	return out
}

// Float64s is Series for numeric leaves. ok is false if any value is not a
// number.
func (ts *Timeseries) Float64s(path string) ([]float64, bool) {
	out := make([]float64, len(ts.records))
	for i, r := range ts.records {
		switch v := r.Values[path].(type) {
		case float64:
			out[i] = v
		case int:
			out[i] = float64(v)
		default:
			return nil, false
		}
	}
	return out, true
}

// Columns returns the path → values view of the timeseries, with the time
// axis under "time".
func (ts *Timeseries) Columns() map[string][]any {
	out := make(map[string][]any, len(ts.paths)+1)
	times := make([]any, len(ts.records))
	for i, t := range ts.Times() {
		times[i] = t
	}
	out["time"] = times
	for _, p := range ts.Paths() {
		out[p] = ts.Series(p)
	}
	return out
}

// Log writes every record to a structured logger.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

func NewLog(logger *slog.Logger, level slog.Level) *Log {
	return &Log{logger: logger, level: level}
}

func (l *Log) Emit(t float64, values map[string]any) {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	attrs := make([]slog.Attr, 0, len(paths)+1)
	attrs = append(attrs, slog.Float64("time", t))
	for _, p := range paths {
		attrs = append(attrs, slog.Any(p, values[p]))
	}
	l.logger.LogAttrs(context.Background(), l.level, "emit", attrs...)
}

// Multi fans one snapshot out to several emitters, each receiving its own copy.
type Multi []Emitter

func (m Multi) Emit(t float64, values map[string]any) {
	for _, e := range m {
		e.Emit(t, store.Copy(values).(map[string]any))
	}
}
