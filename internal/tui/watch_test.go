package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/composim/internal/composite"
	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/processes"
	"github.com/san-kum/composim/internal/store"
	"github.com/san-kum/composim/internal/topology"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	inj, err := processes.NewInjector(map[string]any{
		"rates":     map[string]any{"A": 1.0},
		"time_step": 1.0,
		"emit":      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := composite.Build(
		map[string]process.Process{"inj": inj},
		topology.Wiring{"inj": {"target": store.Path{"pool"}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(c)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func send(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTickAdvancesOneSyncPoint(t *testing.T) {
	eng := newEngine(t)
	m := NewModel(context.Background(), eng, "inject", 5)

	m = send(m, tickMsg(time.Now()))
	if eng.SyncPoints() != 1 || eng.Time() != 1 {
		t.Fatalf("after one tick: syncs=%d time=%v", eng.SyncPoints(), eng.Time())
	}
	if got := m.values["pool/A"]; got != 1.0 {
		t.Errorf("pool/A = %v, want 1", got)
	}
	if len(m.history["pool/A"]) != 1 {
		t.Errorf("history length = %d", len(m.history["pool/A"]))
	}
}

func TestPauseStopsAdvancing(t *testing.T) {
	eng := newEngine(t)
	m := NewModel(context.Background(), eng, "inject", 5)

	m = send(m, key(" "))
	if !m.paused {
		t.Fatal("space did not pause")
	}
	m = send(m, tickMsg(time.Now()))
	if eng.SyncPoints() != 0 {
		t.Errorf("paused model advanced to %d sync points", eng.SyncPoints())
	}
	if !strings.Contains(m.View(), "paused") {
		t.Error("view does not show paused state")
	}
}

func TestSpeedKeys(t *testing.T) {
	eng := newEngine(t)
	m := NewModel(context.Background(), eng, "inject", 10)

	m = send(m, key("+"))
	m = send(m, key("+"))
	if m.speed != 4 {
		t.Fatalf("speed = %d, want 4", m.speed)
	}
	m = send(m, tickMsg(time.Now()))
	if eng.SyncPoints() != 4 {
		t.Errorf("sync points = %d, want 4", eng.SyncPoints())
	}
	m = send(m, key("-"))
	if m.speed != 2 {
		t.Errorf("speed = %d, want 2", m.speed)
	}
}

func TestRunsToCompletion(t *testing.T) {
	eng := newEngine(t)
	m := NewModel(context.Background(), eng, "inject", 3)

	var cmd tea.Cmd
	for i := 0; i < 10 && !m.Done(); i++ {
		var next tea.Model
		next, cmd = m.Update(tickMsg(time.Now()))
		m = next.(Model)
	}
	if !m.Done() {
		t.Fatal("model never finished")
	}
	if cmd != nil {
		t.Error("finished model still schedules ticks")
	}
	if eng.Status() != engine.Complete {
		t.Errorf("status = %v", eng.Status())
	}
	if m.Err() != nil {
		t.Errorf("unexpected error: %v", m.Err())
	}
	view := m.View()
	for _, want := range []string{"inject", "complete", "pool/A"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	m := NewModel(context.Background(), newEngine(t), "inject", 3)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestSparkline(t *testing.T) {
	if sparkline(nil, 10) != "" {
		t.Error("empty data should render nothing")
	}
	got := []rune(sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8))
	if len(got) != 8 || got[0] != '▁' || got[7] != '█' {
		t.Errorf("sparkline = %q", string(got))
	}
}
