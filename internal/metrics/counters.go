package metrics

import "github.com/san-kum/composim/internal/engine"

// SyncPoints counts synchronization points.
type SyncPoints struct {
	name  string
	count int
}

func NewSyncPoints() *SyncPoints {
	return &SyncPoints{name: "sync_points"}
}

func (s *SyncPoints) Name() string { return s.name }

func (s *SyncPoints) OnSync(ev engine.SyncEvent) {
	if ev.Index > 0 {
		s.count++
	}
}

func (s *SyncPoints) Value() float64 { return float64(s.count) }

func (s *SyncPoints) Reset() { s.count = 0 }

// Invocations is the mean number of processes invoked per synchronization
// point.
type Invocations struct {
	name    string
	sum     int
	samples int
}

func NewInvocations() *Invocations {
	return &Invocations{name: "invocations_per_sync"}
}

func (c *Invocations) Name() string { return c.name }

func (c *Invocations) OnSync(ev engine.SyncEvent) {
	if ev.Index == 0 {
		return
	}
	c.sum += len(ev.Invoked)
	c.samples++
}

func (c *Invocations) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.sum) / float64(c.samples)
}

func (c *Invocations) Reset() {
	c.sum = 0
	c.samples = 0
}

// Failures counts updates skipped because their process failed.
type Failures struct {
	name  string
	count int
}

func NewFailures() *Failures {
	return &Failures{name: "skipped_failures"}
}

func (f *Failures) Name() string { return f.name }

func (f *Failures) OnSync(ev engine.SyncEvent) { f.count += len(ev.Skipped) }

func (f *Failures) Value() float64 { return float64(f.count) }

func (f *Failures) Reset() { f.count = 0 }
