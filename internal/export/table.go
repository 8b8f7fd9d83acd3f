package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/san-kum/composim/internal/emitter"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#444466"))
)

// MaxTableRows bounds the rows of WriteTable; longer runs are thinned evenly,
// keeping the first and last record.
const MaxTableRows = 40

func WriteTable(w io.Writer, run Run, ts *emitter.Timeseries) error {
	records := thin(ts.Records(), MaxTableRows)
	paths := ts.Paths()

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(append([]string{"time"}, paths...)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range records {
		row := []string{strconv.FormatFloat(r.Time, 'f', -1, 64)}
		for _, p := range paths {
			v, ok := r.Values[p]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, FormatValue(v))
		}
		t.Row(row...)
	}

	title := titleStyle.Render(run.Name)
	status := labelStyle.Render(fmt.Sprintf("status %s  t=%g  records %d", run.Status, run.TotalTime, ts.Len()))
	if _, err := fmt.Fprintf(w, "%s  %s\n%s\n", title, status, t.Render()); err != nil {
		return err
	}
	if len(run.Metrics) == 0 {
		return nil
	}

	names := make([]string, 0, len(run.Metrics))
	for name := range run.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s %s\n", labelStyle.Render(name+":"), cellStyle.Render(FormatValue(run.Metrics[name]))); err != nil {
			return err
		}
	}
	return nil
}

func thin(records []emitter.Record, max int) []emitter.Record {
	if len(records) <= max || max < 2 {
		return records
	}
	out := make([]emitter.Record, 0, max)
	stride := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, records[int(float64(i)*stride+0.5)])
	}
	return out
}
