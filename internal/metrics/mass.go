package metrics

import (
	"math"

	"github.com/san-kum/composim/internal/engine"
)

// Mass tracks the sum of every numeric emitted value. Value reports the
// largest relative drift from the first observed total, which stays at zero
// for composites that only move amounts between pools.
type Mass struct {
	name    string
	initial float64
	drift   float64
	samples int
}

func NewMass() *Mass {
	return &Mass{name: "mass_drift"}
}

func (m *Mass) Name() string {
	return m.name
}

func (m *Mass) OnSync(ev engine.SyncEvent) {
	total := 0.0
	numeric(ev.Values, func(_ string, v float64) { total += v })
	m.samples++
	if m.samples == 1 {
		m.initial = total
		return
	}
	scale := math.Max(math.Abs(m.initial), 1e-12)
	m.drift = math.Max(m.drift, math.Abs(total-m.initial)/scale)
}

func (m *Mass) Value() float64 {
	return m.drift
}

func (m *Mass) Reset() {
	m.initial = 0
	m.drift = 0
	m.samples = 0
}
