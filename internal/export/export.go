// Package export encodes emitted timeseries for humans and other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/composim/internal/emitter"
)

type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatColumns Format = "columns"
	FormatCSV     Format = "csv"
	FormatYAML    Format = "yaml"
)

func Formats() []Format {
	return []Format{FormatTable, FormatJSON, FormatColumns, FormatCSV, FormatYAML}
}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// Data is the document written by the structured encoders.
type Data struct {
	Name      string             `json:"name" yaml:"name"`
	TotalTime float64            `json:"total_time" yaml:"total_time"`
	Status    string             `json:"status" yaml:"status"`
	Steps     int                `json:"steps" yaml:"steps"`
	Records   []emitter.Record   `json:"records,omitempty" yaml:"records,omitempty"`
	Columns   map[string][]any   `json:"columns,omitempty" yaml:"columns,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Run describes the run a timeseries came from.
type Run struct {
	Name      string
	TotalTime float64
	Status    string
	Metrics   map[string]float64
}

func Write(w io.Writer, f Format, run Run, ts *emitter.Timeseries) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, run, ts, false)
	case FormatColumns:
		return WriteJSON(w, run, ts, true)
	case FormatCSV:
		return WriteCSV(w, ts)
	case FormatYAML:
		return WriteYAML(w, run, ts)
	case FormatTable:
		return WriteTable(w, run, ts)
	}
	return fmt.Errorf("export: unknown format %q", f)
}

func document(run Run, ts *emitter.Timeseries, columnar bool) Data {
	data := Data{
		Name:      run.Name,
		TotalTime: run.TotalTime,
		Status:    run.Status,
		Steps:     ts.Len(),
		Metrics:   run.Metrics,
	}
	if columnar {
		data.Columns = ts.Columns()
	} else {
		data.Records = ts.Records()
	}
	return data
}

// jsonData replaces the metrics of Data so non-finite values can be nulled.
type jsonData struct {
	Data
	Metrics map[string]any `json:"metrics,omitempty"`
}

// WriteJSON writes the run either as ordered records or, when columnar, as
// per-path value columns aligned with the "time" column. JSON has no NaN or
// infinity, so non-finite numbers are written as null.
func WriteJSON(w io.Writer, run Run, ts *emitter.Timeseries, columnar bool) error {
	data := document(run, ts, columnar)
	out := jsonData{Data: data}
	for i, r := range data.Records {
		data.Records[i].Values = finite(r.Values).(map[string]any)
	}
	for path, col := range data.Columns {
		data.Columns[path] = finite(col).([]any)
	}
	if len(data.Metrics) > 0 {
		out.Metrics = make(map[string]any, len(data.Metrics))
		for name, v := range data.Metrics {
			out.Metrics[name] = finite(v)
		}
	}
	out.Data = data

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func finite(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, f := range x {
			out[k] = finite(f)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = finite(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = finite(e)
		}
		return out
	}
	return v
}

func WriteYAML(w io.Writer, run Run, ts *emitter.Timeseries) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(document(run, ts, false)); err != nil {
		return err
	}
	return encoder.Close()
}

// WriteCSV writes one row per record: time, then every emitted path in
// lexical order. Paths missing from a record are left empty.
func WriteCSV(w io.Writer, ts *emitter.Timeseries) error {
	cw := csv.NewWriter(w)

	paths := ts.Paths()
	header := append([]string{"time"}, paths...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range ts.Records() {
		row := []string{strconv.FormatFloat(r.Time, 'f', -1, 64)}
		for _, p := range paths {
			v, ok := r.Values[p]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, FormatValue(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatValue renders a leaf value compactly.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', 8, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case map[string]float64:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := ""
		for i, k := range keys {
			if i > 0 {
				s += " "
			}
			s += k + "=" + strconv.FormatFloat(x[k], 'g', 8, 64)
		}
		return s
	}
	return fmt.Sprint(v)
}
