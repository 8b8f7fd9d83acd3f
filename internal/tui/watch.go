// Package tui renders a live view of a running engine.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/export"
	"github.com/san-kum/composim/internal/process"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const historyLen = 60

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model advances an engine one or more synchronization points per frame and
// shows the latest emitted values.
type Model struct {
	ctx    context.Context
	eng    *engine.Engine
	name   string
	total  float64
	paused bool
	speed  int
	done   bool
	err    error

	seen    int
	values  map[string]any
	paths   []string
	history map[string][]float64
	cursor  int

	width  int
	height int
}

func NewModel(ctx context.Context, eng *engine.Engine, name string, total float64) Model {
	m := Model{
		ctx:     ctx,
		eng:     eng,
		name:    name,
		total:   total,
		speed:   1,
		history: make(map[string][]float64),
		width:   80,
		height:  24,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd { return tick() }

// Err is the error that ended the run, if any.
func (m Model) Err() error { return m.err }

func (m Model) Done() bool { return m.done }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		if !m.paused {
			m.step()
		}
		if m.done {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() {
	for i := 0; i < m.speed; i++ {
		done, err := m.eng.Advance(m.ctx, m.total)
		if err != nil {
			m.err = err
			m.done = true
			break
		}
		if done {
			m.done = true
			break
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	ts := m.eng.Timeseries()
	if ts.Len() == m.seen {
		return
	}
	m.seen = ts.Len()
	if last, ok := ts.Last(); ok {
		m.record(last.Values)
	}
}

func (m *Model) record(values map[string]any) {
	m.values = values
	m.paths = m.paths[:0]
	for p, v := range values {
		m.paths = append(m.paths, p)
		f, ok := process.AsFloat(v)
		if !ok {
			continue
		}
		h := append(m.history[p], f)
		if len(h) > historyLen {
			h = h[1:]
		}
		m.history[p] = h
	}
	sort.Strings(m.paths)
	if m.cursor >= len(m.paths) {
		m.cursor = 0
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ":
		m.paused = !m.paused
	case "+", "=":
		if m.speed < 1000 {
			m.speed *= 2
		}
	case "-", "_":
		if m.speed > 1 {
			m.speed /= 2
		}
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.paths)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("running")
	switch {
	case m.err != nil:
		statusIcon = red.Render("✕")
		statusText = red.Render("failed")
	case m.done:
		statusIcon = cyan.Render("■")
		statusText = cyan.Render("complete")
	case m.paused:
		statusIcon = yellow.Render("○")
		statusText = yellow.Render("paused")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s  %s\n",
		statusIcon, cyan.Render(m.name), statusText, dim.Render(fmt.Sprintf("×%d", m.speed))))

	progress := 0.0
	if m.total > 0 {
		progress = m.eng.Time() / m.total
	}
	if progress > 1 {
		progress = 1
	}
	barWidth := 36
	filled := int(progress * float64(barWidth))
	timeStr := fmt.Sprintf("t=%g/%g  sync %d", m.eng.Time(), m.total, m.eng.SyncPoints())
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s\n\n", bar, dim.Render(timeStr)))

	rows := m.height - 10
	if rows < 5 {
		rows = 5
	}
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(m.paths) && i < start+rows; i++ {
		p := m.paths[i]
		val := export.FormatValue(m.values[p])
		if i == m.cursor {
			b.WriteString("   " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-32s", p)) + magenta.Render(val) + "\n")
		} else {
			b.WriteString("     " + dim.Render(fmt.Sprintf("%-32s", p)) + dim.Render(val) + "\n")
		}
	}

	if len(m.paths) > 0 {
		p := m.paths[m.cursor]
		if h := m.history[p]; len(h) > 1 {
			b.WriteString(fmt.Sprintf("\n   %s %s\n", dim.Render(p), cyan.Render(sparkline(h, 40))))
		}
	}
	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   space pause  ±speed  ↑↓ select  q quit") + "\n")
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		v := data[i*step]
		idx := int((v - minVal) / rang * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// Watch runs the engine to total inside a full-screen monitor. Quitting early
// leaves the engine where it stopped.
func Watch(ctx context.Context, eng *engine.Engine, name string, total float64) error {
	p := tea.NewProgram(NewModel(ctx, eng, name, total), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
