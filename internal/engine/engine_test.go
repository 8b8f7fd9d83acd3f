package engine_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/composim/internal/composite"
	"github.com/san-kum/composim/internal/emitter"
	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/store"
	"github.com/san-kum/composim/internal/topology"
)

func build(procs map[string]process.Process, wiring topology.Wiring) *composite.Composite {
	GinkgoHelper()
	c, err := composite.Build(procs, wiring)
	Expect(err).NotTo(HaveOccurred())
	return c
}

func newEngine(c *composite.Composite, opts ...engine.Option) *engine.Engine {
	GinkgoHelper()
	e, err := engine.New(c, opts...)
	Expect(err).NotTo(HaveOccurred())
	return e
}

var _ = Describe("Engine", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("New", func() {
		It("rejects a non-positive time step", func() {
			c := build(
				map[string]process.Process{"a": &counter{step: 0, delta: 1}},
				topology.Wiring{"a": {"x": {"x"}}},
			)
			_, err := engine.New(c)
			Expect(err).To(MatchError(engine.ErrTimeStep))
		})

		It("rejects a time step that rounds to zero", func() {
			c := build(
				map[string]process.Process{"a": &counter{step: 0.001, delta: 1}},
				topology.Wiring{"a": {"x": {"x"}}},
			)
			_, err := engine.New(c, engine.WithConfig(engine.Config{Precision: 2}))
			Expect(err).To(MatchError(engine.ErrTimeStep))
		})

		It("starts pending at t=0", func() {
			c := build(
				map[string]process.Process{"a": &counter{step: 1, delta: 1}},
				topology.Wiring{"a": {"x": {"x"}}},
			)
			e := newEngine(c)
			Expect(e.Status()).To(Equal(engine.Pending))
			Expect(e.Time()).To(BeZero())
		})
	})

	Describe("cadence", func() {
		It("invokes a process once per time step with the full interval", func() {
			a := &counter{step: 2, delta: 1, emit: true}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}))

			ts, err := e.Run(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.intervals).To(Equal([]float64{2, 2, 2, 2, 2}))
			Expect(ts.Times()).To(Equal([]float64{2, 4, 6, 8, 10}))
			Expect(e.Status()).To(Equal(engine.Complete))
			Expect(e.Get(store.Path{"x"})).To(Equal(10.0))
		})

		It("truncates the last step at the total time", func() {
			a := &counter{step: 3, delta: 1, emit: true}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}))

			ts, err := e.Run(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.intervals).To(Equal([]float64{3, 3, 3, 1}))
			Expect(ts.Times()).To(Equal([]float64{3, 6, 9, 10}))
		})

		It("synchronizes processes with different steps at the union of their due times", func() {
			fast := &counter{step: 0.1, delta: 1}
			slow := &counter{step: 0.3, delta: 1}
			e := newEngine(build(
				map[string]process.Process{"fast": fast, "slow": slow},
				topology.Wiring{"fast": {"x": {"f"}}, "slow": {"x": {"s"}}},
			))

			_, err := e.Run(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.SyncPoints()).To(Equal(10))
			Expect(e.Invocations()).To(Equal(map[string]int{"fast": 10, "slow": 4}))
			Expect(slow.intervals[3]).To(BeNumerically("~", 0.1, 1e-9))
			Expect(e.Time()).To(Equal(1.0))
		})
	})

	Describe("shared state", func() {
		It("gives every due process the same pre-step view", func() {
			a := &counter{step: 1, delta: 1}
			b := &counter{step: 1, delta: 2}
			e := newEngine(build(
				map[string]process.Process{"a": a, "b": b},
				topology.Wiring{"a": {"x": {"pool"}}, "b": {"x": {"pool"}}},
			))

			_, err := e.Run(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Get(store.Path{"pool"})).To(Equal(9.0))
			Expect(a.seen).To(Equal([]float64{0, 3, 6}))
			Expect(b.seen).To(Equal(a.seen))
		})

		It("keeps processes on disjoint paths isolated", func() {
			a := &counter{step: 1, delta: 1}
			b := &counter{step: 1, delta: 2}
			e := newEngine(build(
				map[string]process.Process{"a": a, "b": b},
				topology.Wiring{"a": {"x": {"left"}}, "b": {"x": {"right"}}},
			))

			_, err := e.Run(ctx, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.State()).To(Equal(map[string]any{"left": 4.0, "right": 8.0}))
			Expect(b.seen).To(Equal([]float64{0, 2, 4, 6}))
		})
	})

	Describe("emission", func() {
		It("records only leaves marked emit", func() {
			e := newEngine(build(
				map[string]process.Process{"hidden": &counter{step: 1, delta: 1}, "decay": &decay{step: 1, rate: 0.5}},
				topology.Wiring{"hidden": {"x": {"x"}}, "decay": {"source": {"a"}, "sink": {"b"}}},
			))

			ts, err := e.Run(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(ts.Len()).To(Equal(2))
			for _, r := range ts.Records() {
				Expect(r.Values).To(HaveLen(2))
				Expect(r.Values).To(HaveKey("a"))
				Expect(r.Values).To(HaveKey("b"))
			}
			last, _ := ts.Last()
			Expect(last.Values).To(Equal(map[string]any{"a": 2.5, "b": 7.5}))
		})

		It("records the initial state when asked to", func() {
			cfg := engine.DefaultConfig()
			cfg.EmitInitial = true
			e := newEngine(build(
				map[string]process.Process{"decay": &decay{step: 1, rate: 0.5}},
				topology.Wiring{"decay": {"source": {"a"}, "sink": {"b"}}},
			), engine.WithConfig(cfg))

			ts, err := e.Run(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ts.Times()).To(Equal([]float64{0, 1}))
			Expect(ts.Records()[0].Values).To(Equal(map[string]any{"a": 10.0, "b": 0.0}))
		})

		It("forwards every record to extra emitters", func() {
			extra := emitter.NewTimeseries()
			e := newEngine(build(
				map[string]process.Process{"decay": &decay{step: 1, rate: 0.5}},
				topology.Wiring{"decay": {"source": {"a"}, "sink": {"b"}}},
			), engine.WithEmitter(extra))

			ts, err := e.Run(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(extra.Records()).To(Equal(ts.Records()))
		})

		It("applies run overrides over the composite initial state", func() {
			c := build(
				map[string]process.Process{"decay": &decay{step: 1, rate: 0.5}},
				topology.Wiring{"decay": {"source": {"a"}, "sink": {"b"}}},
			)
			ts, err := engine.Run(ctx, c, map[string]any{"a": 20.0}, 1)
			Expect(err).NotTo(HaveOccurred())
			last, _ := ts.Last()
			Expect(last.Values).To(Equal(map[string]any{"a": 10.0, "b": 10.0}))
		})
	})

	Describe("failures", func() {
		It("stops at the failing synchronization point and keeps the prefix", func() {
			a := &counter{step: 1, delta: 1, emit: true, failAt: 3}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}))

			ts, err := e.Run(ctx, 10)
			var cerr *process.ComputationError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Process).To(Equal("a"))
			Expect(cerr.Time).To(Equal(3.0))
			Expect(err).To(MatchError(errBoom))

			Expect(ts.Len()).To(Equal(2))
			Expect(e.Status()).To(Equal(engine.Failed))
			Expect(e.Get(store.Path{"x"})).To(Equal(2.0))

			_, err = e.Advance(ctx, 10)
			Expect(err).To(MatchError(engine.ErrFailed))
			Expect(err).To(MatchError(errBoom))
		})

		It("aborts when an update names an undeclared port", func() {
			e := newEngine(build(map[string]process.Process{"s": stray{}}, topology.Wiring{"s": {"x": {"x"}}}))

			ts, err := e.Run(ctx, 5)
			Expect(err).To(MatchError(store.ErrSchema))
			Expect(e.Status()).To(Equal(engine.Failed))
			Expect(ts.Len()).To(BeZero())
			Expect(e.Get(store.Path{"x"})).To(Equal(0.0))
		})

		It("leaves the store untouched when another due process fails", func() {
			a := &counter{step: 1, delta: 1}
			b := &counter{step: 1, delta: 1, failAt: 2}
			e := newEngine(build(
				map[string]process.Process{"a": a, "b": b},
				topology.Wiring{"a": {"x": {"left"}}, "b": {"x": {"right"}}},
			))

			_, err := e.Run(ctx, 5)
			Expect(err).To(MatchError(process.ErrComputation))
			Expect(e.State()).To(Equal(map[string]any{"left": 1.0, "right": 1.0}))
		})

		It("continues past failures when skipping them", func() {
			var skipped []string
			cfg := engine.DefaultConfig()
			cfg.SkipFailures = true
			a := &counter{step: 1, delta: 1, emit: true, failAt: 3}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}),
				engine.WithConfig(cfg),
				engine.WithObserver(engine.ObserverFunc(func(ev engine.SyncEvent) {
					skipped = append(skipped, ev.Skipped...)
				})),
			)

			ts, err := e.Run(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ts.Len()).To(Equal(10))
			Expect(e.Invocations()["a"]).To(Equal(9))
			Expect(e.Get(store.Path{"x"})).To(Equal(9.0))
			Expect(skipped).To(Equal([]string{"a"}))
		})
	})

	Describe("parallel mode", func() {
		pair := func() (map[string]process.Process, topology.Wiring) {
			return map[string]process.Process{
					"a": &counter{step: 1, delta: 1, emit: true},
					"b": &counter{step: 0.5, delta: 2, emit: true},
					"d": &decay{step: 0.25, rate: 0.1},
				}, topology.Wiring{
					"a": {"x": {"pool"}},
					"b": {"x": {"pool"}},
					"d": {"source": {"src"}, "sink": {"pool"}},
				}
		}

		It("produces the same timeseries as sequential mode", func() {
			seq := newEngine(build(pair()))
			want, err := seq.Run(ctx, 5)
			Expect(err).NotTo(HaveOccurred())

			cfg := engine.DefaultConfig()
			cfg.Parallel = true
			cfg.Workers = 2
			par := newEngine(build(pair()), engine.WithConfig(cfg))
			got, err := par.Run(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Records()).To(Equal(want.Records()))
		})

		It("reports the failure of the lowest process id", func() {
			cfg := engine.DefaultConfig()
			cfg.Parallel = true
			e := newEngine(build(
				map[string]process.Process{
					"a": &counter{step: 1, delta: 1, failAt: 1},
					"b": &counter{step: 1, delta: 1, failAt: 1},
				},
				topology.Wiring{"a": {"x": {"a"}}, "b": {"x": {"b"}}},
			), engine.WithConfig(cfg))

			_, err := e.Run(ctx, 2)
			var cerr *process.ComputationError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Process).To(Equal("a"))
		})
	})

	Describe("incremental runs", func() {
		It("stops between synchronization points on cancellation and resumes", func() {
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			a := &counter{step: 1, delta: 1, emit: true}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}),
				engine.WithObserver(engine.ObserverFunc(func(ev engine.SyncEvent) {
					if ev.Index == 3 {
						cancel()
					}
				})),
			)

			ts, err := e.Run(runCtx, 10)
			Expect(err).To(MatchError(context.Canceled))
			Expect(ts.Len()).To(Equal(3))
			Expect(e.Status()).To(Equal(engine.Running))

			ts, err = e.Run(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ts.Len()).To(Equal(10))
			Expect(a.calls()).To(Equal(10))
		})

		It("drops a synchronization point cancelled during its updates", func() {
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			a := &counter{step: 1, delta: 1, emit: true, onCall: func(n int) {
				if n == 2 {
					cancel()
				}
			}}
			b := &counter{step: 1, delta: 2, emit: true}
			e := newEngine(build(
				map[string]process.Process{"a": a, "b": b},
				topology.Wiring{"a": {"x": {"a"}}, "b": {"x": {"b"}}},
			))

			ts, err := e.Run(runCtx, 4)
			Expect(err).To(MatchError(context.Canceled))
			Expect(e.Status()).To(Equal(engine.Running))
			Expect(ts.Len()).To(Equal(1))
			Expect(e.Time()).To(Equal(1.0))
			Expect(e.State()).To(Equal(map[string]any{"a": 1.0, "b": 2.0}))

			ts, err = e.Run(ctx, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Status()).To(Equal(engine.Complete))
			Expect(ts.Times()).To(Equal([]float64{1, 2, 3, 4}))
			Expect(e.State()).To(Equal(map[string]any{"a": 4.0, "b": 8.0}))
			Expect(a.seen).To(Equal([]float64{0, 1, 1, 2, 3}))
		})

		It("rejects a total time that is not finite", func() {
			a := &counter{step: 1, delta: 1, emit: true}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}))

			for _, total := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				done, err := e.Advance(ctx, total)
				Expect(err).To(MatchError(engine.ErrTotalTime))
				Expect(done).To(BeFalse())
			}
			_, err := e.Run(ctx, math.NaN())
			Expect(err).To(MatchError(engine.ErrTotalTime))
			Expect(e.Status()).To(Equal(engine.Pending))
			Expect(e.SyncPoints()).To(BeZero())
			Expect(e.Timeseries().Len()).To(BeZero())
			Expect(a.calls()).To(BeZero())
		})

		It("extends a completed run with Update", func() {
			a := &counter{step: 1, delta: 1, emit: true}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}))

			_, err := e.Update(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Status()).To(Equal(engine.Complete))

			ts, err := e.Update(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(ts.Times()).To(Equal([]float64{1, 2, 3, 4}))
			Expect(e.Time()).To(Equal(4.0))
		})

		It("executes one synchronization point per Advance", func() {
			a := &counter{step: 1.5, delta: 1}
			e := newEngine(build(map[string]process.Process{"a": a}, topology.Wiring{"a": {"x": {"x"}}}))

			done, err := e.Advance(ctx, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
			Expect(e.Time()).To(Equal(1.5))

			done, _ = e.Advance(ctx, 4)
			Expect(done).To(BeFalse())
			done, _ = e.Advance(ctx, 4)
			Expect(done).To(BeTrue())
			Expect(e.Time()).To(Equal(4.0))
			Expect(a.intervals).To(Equal([]float64{1.5, 1.5, 1}))
		})
	})
})
