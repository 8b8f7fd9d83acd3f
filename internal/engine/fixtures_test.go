package engine_test

import (
	"context"
	"errors"
	"sync"

	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
)

var errBoom = errors.New("boom")

// counter adds delta to its "x" port every step and remembers every call.
type counter struct {
	step   float64
	delta  float64
	emit   bool
	failAt int
	onCall func(n int)

	mu        sync.Mutex
	intervals []float64
	seen      []float64
}

func (c *counter) Schema() schema.Schema {
	return schema.Schema{"x": schema.Leaf(0.0, store.Accumulate, c.emit)}
}

func (c *counter) InitialState() process.State { return nil }

func (c *counter) TimeStep() float64 { return c.step }

func (c *counter) Update(_ context.Context, interval float64, s process.State) (process.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intervals = append(c.intervals, interval)
	c.seen = append(c.seen, s.Float("x"))
	if c.onCall != nil {
		c.onCall(len(c.intervals))
	}
	if c.failAt > 0 && len(c.intervals) == c.failAt {
		return nil, errBoom
	}
	return process.Update{"x": c.delta * interval}, nil
}

func (c *counter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.intervals)
}

// decay moves amount from "source" to "sink" at a fixed rate.
type decay struct {
	step float64
	rate float64
}

func (d *decay) Schema() schema.Schema {
	return schema.Schema{
		"source": schema.Leaf(0.0, store.Accumulate, true),
		"sink":   schema.Leaf(0.0, store.Accumulate, true),
	}
}

func (d *decay) InitialState() process.State { return process.State{"source": 10.0} }

func (d *decay) TimeStep() float64 { return d.step }

func (d *decay) Update(_ context.Context, interval float64, s process.State) (process.Update, error) {
	moved := d.rate * s.Float("source") * interval
	return process.Update{"source": -moved, "sink": moved}, nil
}

// stray writes to a port its schema never declared.
type stray struct{}

func (stray) Schema() schema.Schema {
	return schema.Schema{"x": schema.Leaf(0.0, store.Accumulate, true)}
}

func (stray) InitialState() process.State { return nil }

func (stray) TimeStep() float64 { return 1 }

func (stray) Update(context.Context, float64, process.State) (process.Update, error) {
	return process.Update{"x": 1.0, "ghost": 1.0}, nil
}
