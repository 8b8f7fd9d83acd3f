package metrics

import (
	"math"

	"github.com/san-kum/composim/internal/engine"
)

// Stability is the fraction of records whose numeric emitted values all stay
// within threshold in absolute value.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) OnSync(ev engine.SyncEvent) {
	s.samples++
	violated := false
	numeric(ev.Values, func(_ string, v float64) {
		if math.IsNaN(v) || math.Abs(v) > s.threshold {
			violated = true
		}
	})
	if violated {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
