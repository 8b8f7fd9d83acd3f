package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/composim/internal/composite"
	"github.com/san-kum/composim/internal/emitter"
	"github.com/san-kum/composim/internal/process"
	"github.com/san-kum/composim/internal/schema"
	"github.com/san-kum/composim/internal/store"
	"github.com/san-kum/composim/internal/topology"
)

type Status int

const (
	Pending Status = iota
	Running
	Complete
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// DefaultPrecision is the number of decimal digits simulated times are
// rounded to before being compared.
const DefaultPrecision = 5

type Config struct {
	// Precision is the number of decimal digits used when comparing due
	// times. Values <= 0 select DefaultPrecision.
	Precision int
	// Parallel invokes the processes due at one synchronization point
	// concurrently. Every process still reads the pre-step store.
	Parallel bool
	// Workers bounds concurrent invocations in parallel mode; 0 means one
	// goroutine per due process.
	Workers int
	// SkipFailures turns failing updates into empty ones instead of
	// aborting the run.
	SkipFailures bool
	// EmitInitial records the initial state at t=0 before the first
	// synchronization point.
	EmitInitial bool
}

func DefaultConfig() Config {
	return Config{Precision: DefaultPrecision}
}

// SyncEvent describes one completed synchronization point.
type SyncEvent struct {
	Index   int
	Time    float64
	Invoked []string
	Skipped []string
	Values  map[string]any
}

type Observer interface {
	OnSync(ev SyncEvent)
}

type ObserverFunc func(ev SyncEvent)

func (f ObserverFunc) OnSync(ev SyncEvent) { f(ev) }

type unit struct {
	id          string
	proc        process.Process
	schema      schema.Schema
	topo        topology.Topology
	step        float64
	lastRun     float64
	nextDue     float64
	invocations int
}

type Engine struct {
	comp      *composite.Composite
	cfg       Config
	scale     float64
	store     *store.Store
	units     []*unit
	time      float64
	status    Status
	err       error
	syncs     int
	series    *emitter.Timeseries
	emitters  []emitter.Emitter
	observers []Observer
	logger    *slog.Logger
	initial   map[string]any
}

type Option func(*Engine)

func WithConfig(cfg Config) Option { return func(e *Engine) { e.cfg = cfg } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithInitialState overrides store values before the run starts.
func WithInitialState(state map[string]any) Option {
	return func(e *Engine) { e.initial = state }
}

// WithEmitter adds an emitter next to the engine's own timeseries.
func WithEmitter(em emitter.Emitter) Option {
	return func(e *Engine) { e.emitters = append(e.emitters, em) }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// New prepares a run of c. Processes are scheduled in c's id order.
func New(c *composite.Composite, opts ...Option) (*Engine, error) {
	e := &Engine{
		comp:   c,
		cfg:    DefaultConfig(),
		store:  c.NewStore(),
		series: emitter.NewTimeseries(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Precision <= 0 {
		e.cfg.Precision = DefaultPrecision
	}
	e.scale = math.Pow(10, float64(e.cfg.Precision))

	if len(e.initial) > 0 {
		if err := e.store.SetTree(nil, e.initial); err != nil {
			return nil, fmt.Errorf("initial state: %w", err)
		}
	}

	for _, id := range c.IDs() {
		p, _ := c.Process(id)
		step := p.TimeStep()
		if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
			return nil, fmt.Errorf("%w: process %q has time step %g", ErrTimeStep, id, step)
		}
		step = e.round(step)
		if step <= 0 {
			return nil, fmt.Errorf("%w: process %q time step %g vanishes at precision %d", ErrTimeStep, id, p.TimeStep(), e.cfg.Precision)
		}
		e.units = append(e.units, &unit{
			id:      id,
			proc:    p,
			schema:  c.Schema(id),
			topo:    c.Topology(id),
			step:    step,
			nextDue: step,
		})
	}
	e.logger = e.logger.With(slog.Int("processes", len(e.units)))
	return e, nil
}

// Run builds an engine for c and runs it to total. It is the top-level entry
// point: the timeseries is returned even when err is non-nil.
func Run(ctx context.Context, c *composite.Composite, overrides map[string]any, total float64, opts ...Option) (*emitter.Timeseries, error) {
	opts = append(opts, WithInitialState(overrides))
	e, err := New(c, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, total)
}

func (e *Engine) round(t float64) float64 {
	return math.Round(t*e.scale) / e.scale
}

func (e *Engine) Status() Status { return e.status }

// Time is the simulated time of the last synchronization point.
func (e *Engine) Time() float64 { return e.time }

// Err is the failure that moved the engine to Failed.
func (e *Engine) Err() error { return e.err }

// SyncPoints counts completed synchronization points.
func (e *Engine) SyncPoints() int { return e.syncs }

func (e *Engine) Timeseries() *emitter.Timeseries { return e.series }

// State returns a copy of the whole store.
func (e *Engine) State() map[string]any { return e.store.Snapshot() }

// Get reads one store path.
func (e *Engine) Get(p store.Path) (any, error) { return e.store.Get(p) }

// Invocations returns how many times each process has been updated.
func (e *Engine) Invocations() map[string]int {
	out := make(map[string]int, len(e.units))
	for _, u := range e.units {
		out[u.id] = u.invocations
	}
	return out
}

// Run advances until simulated time reaches total. Cancelling ctx stops the
// loop between synchronization points; the store then holds the last fully
// applied point and Run can be called again to resume.
func (e *Engine) Run(ctx context.Context, total float64) (*emitter.Timeseries, error) {
	e.logger.Info("Starting run", slog.Float64("from", e.time), slog.Float64("until", total))
	start := time.Now()
	for {
		done, err := e.Advance(ctx, total)
		if err != nil {
			e.logger.Error("Run stopped", slog.Float64("time", e.time), slog.Any("error", err))
			return e.series, err
		}
		if done {
			break
		}
	}
	e.logger.Info("Run complete",
		slog.Float64("time", e.time),
		slog.Int("sync-points", e.syncs),
		slog.Duration("elapsed", time.Since(start)),
	)
	return e.series, nil
}

// Update runs for interval past the current time.
func (e *Engine) Update(ctx context.Context, interval float64) (*emitter.Timeseries, error) {
	return e.Run(ctx, e.time+interval)
}

// Advance executes at most one synchronization point toward total and reports
// whether total has been reached.
func (e *Engine) Advance(ctx context.Context, total float64) (bool, error) {
	if e.status == Failed {
		return true, fmt.Errorf("%w: %w", ErrFailed, e.err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return false, fmt.Errorf("%w: got %g", ErrTotalTime, total)
	}
	total = e.round(total)

	if e.status == Pending {
		e.status = Running
		if e.cfg.EmitInitial {
			e.emit(SyncEvent{Time: e.time, Values: e.store.Emitted()})
		}
	}
	if e.time >= total {
		e.status = Complete
		return true, nil
	}
	e.status = Running
	e.retarget(total)

	if err := e.synchronize(ctx); err != nil {
		return e.status == Failed, err
	}
	if e.time >= total {
		e.status = Complete
		return true, nil
	}
	return false, nil
}

// retarget truncates every due time so no process overshoots total.
func (e *Engine) retarget(total float64) {
	for _, u := range e.units {
		u.nextDue = math.Min(e.round(u.lastRun+u.step), total)
	}
}

type outcome struct {
	update  process.Update
	err     error
	skipped bool
}

func (e *Engine) synchronize(ctx context.Context) error {
	t := math.Inf(1)
	for _, u := range e.units {
		t = math.Min(t, u.nextDue)
	}
	var due []*unit
	for _, u := range e.units {
		if u.nextDue == t {
			due = append(due, u)
		}
	}

	ctx, span := tracer.Start(ctx, "engine.synchronize", trace.WithAttributes(
		attribute.Float64("sim.time", t),
		attribute.Int("sim.due", len(due)),
	))
	defer span.End()

	logger := e.logger.With(slog.Float64("time", t))
	logger.Debug("Synchronization point", slog.Int("due", len(due)))

	views := make([]process.State, len(due))
	for i, u := range due {
		v, err := topology.View(e.store, u.schema, u.topo)
		if err != nil {
			return e.fail(span, fmt.Errorf("view of %q: %w", u.id, err))
		}
		views[i] = v
	}

	outcomes := e.invoke(ctx, due, views, t)

	// A cancellation during the fan-out drops the whole point, so the run
	// resumes from the last applied one.
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Info("Synchronization point abandoned", slog.Any("error", err))
		return err
	}

	var deltas []store.Delta
	var invoked, skipped []string
	for i, u := range due {
		out := outcomes[i]
		if out.err != nil {
			cerr := &process.ComputationError{Process: u.id, Time: t, Err: out.err}
			if !e.cfg.SkipFailures {
				return e.fail(span, cerr)
			}
			logger.Warn("Skipping failed update", slog.String("process", u.id), slog.Any("error", out.err))
			skipped = append(skipped, u.id)
			continue
		}
		if out.skipped {
			continue
		}
		invoked = append(invoked, u.id)
		ds, err := topology.Route(u.schema, u.topo, out.update)
		if err != nil {
			return e.fail(span, fmt.Errorf("update of %q: %w", u.id, err))
		}
		deltas = append(deltas, ds...)
	}

	next := e.store.Clone()
	if err := next.ApplyAll(deltas); err != nil {
		return e.fail(span, err)
	}
	e.store = next

	for _, u := range due {
		u.lastRun = t
	}
	for i, u := range due {
		if outcomes[i].err == nil && !outcomes[i].skipped {
			u.invocations++
		}
	}
	e.time = t
	e.syncs++

	e.emit(SyncEvent{
		Index:   e.syncs,
		Time:    t,
		Invoked: invoked,
		Skipped: skipped,
		Values:  e.store.Emitted(),
	})
	return nil
}

func (e *Engine) invoke(ctx context.Context, due []*unit, views []process.State, t float64) []outcome {
	outcomes := make([]outcome, len(due))
	call := func(i int) {
		u := due[i]
		interval := e.round(t - u.lastRun)
		if interval <= 0 {
			outcomes[i] = outcome{skipped: true}
			return
		}
		start := time.Now()
		upd, err := u.proc.Update(ctx, interval, views[i])
		measureUpdate(ctx, u.id, err == nil, time.Since(start))
		outcomes[i] = outcome{update: upd, err: err}
	}

	if !e.cfg.Parallel || len(due) < 2 {
		for i := range due {
			call(i)
		}
		return outcomes
	}

	var g errgroup.Group
	if e.cfg.Workers > 0 {
		g.SetLimit(e.cfg.Workers)
	}
	for i := range due {
		g.Go(func() error {
			call(i)
			return nil
		})
	}
	// Failures are carried in outcomes so the first one reported is the
	// lowest process id, not the first goroutine to finish.
	_ = g.Wait()
	return outcomes
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	e.status = Failed
	e.err = err
	return err
}

func (e *Engine) emit(ev SyncEvent) {
	values := ev.Values
	e.series.Emit(ev.Time, values)
	for _, em := range e.emitters {
		em.Emit(ev.Time, store.Copy(values).(map[string]any))
	}
	for _, o := range e.observers {
		ev.Values = store.Copy(values).(map[string]any)
		o.OnSync(ev)
	}
}
