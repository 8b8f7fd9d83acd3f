package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/composim/internal/composite"
	"github.com/san-kum/composim/internal/config"
	"github.com/san-kum/composim/internal/emitter"
	"github.com/san-kum/composim/internal/engine"
	"github.com/san-kum/composim/internal/metrics"
	"github.com/san-kum/composim/internal/process"
)

var ErrNotSetup = errors.New("experiment: not set up")

type Result struct {
	Name       string
	Timeseries *emitter.Timeseries
	Final      map[string]any
	Status     engine.Status
	Elapsed    time.Duration
	Metrics    map[string]float64
}

type Experiment struct {
	cfg       *config.Composite
	registry  *Registry
	logger    *slog.Logger
	composite *composite.Composite
	engine    *engine.Engine
	metrics   []metrics.Metric
	observers []engine.Observer
	emitters  []emitter.Emitter
	elapsed   time.Duration
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option { return func(e *Experiment) { e.logger = l } }

// WithObserver adds an engine observer next to the default metrics.
func WithObserver(o engine.Observer) Option {
	return func(e *Experiment) { e.observers = append(e.observers, o) }
}

func WithEmitter(em emitter.Emitter) Option {
	return func(e *Experiment) { e.emitters = append(e.emitters, em) }
}

func New(cfg *config.Composite, registry *Registry, opts ...Option) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Experiment{
		cfg:      cfg,
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Setup builds every process and the composite, then prepares the engine.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	procs := make(map[string]process.Process, len(e.cfg.Processes))
	for _, id := range e.cfg.ProcessIDs() {
		pc := e.cfg.Processes[id]
		p, err := e.registry.Build(pc.Type, pc.Config)
		if err != nil {
			return fmt.Errorf("process %q: %w", id, err)
		}
		procs[id] = p
	}

	c, err := composite.Build(procs, e.cfg.Wiring(), composite.WithInitialState(e.cfg.InitialState))
	if err != nil {
		return err
	}

	engineCfg, err := e.cfg.EngineConfig()
	if err != nil {
		return err
	}
	e.metrics = e.registry.DefaultMetrics()
	opts := []engine.Option{
		engine.WithConfig(engineCfg),
		engine.WithLogger(e.logger.With(slog.String("composite", e.cfg.Name))),
	}
	for _, o := range metrics.Observers(e.metrics) {
		opts = append(opts, engine.WithObserver(o))
	}
	for _, o := range e.observers {
		opts = append(opts, engine.WithObserver(o))
	}
	for _, em := range e.emitters {
		opts = append(opts, engine.WithEmitter(em))
	}
	eng, err := engine.New(c, opts...)
	if err != nil {
		return err
	}
	e.composite = c
	e.engine = eng
	return nil
}

// Run drives the engine to the configured total time. The result is returned
// even when the run fails, holding everything up to the failure.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.engine == nil {
		return nil, ErrNotSetup
	}
	start := time.Now()
	_, err := e.engine.Run(ctx, e.cfg.TotalTime)
	e.elapsed += time.Since(start)
	return e.Result(), err
}

// Result summarizes the engine as it stands. It is meant for callers that
// drive the engine themselves through Engine.
func (e *Experiment) Result() *Result {
	if e.engine == nil {
		return nil
	}
	return &Result{
		Name:       e.cfg.Name,
		Timeseries: e.engine.Timeseries(),
		Final:      e.engine.State(),
		Status:     e.engine.Status(),
		Elapsed:    e.elapsed,
		Metrics:    metrics.Collect(e.metrics),
	}
}

// Composite returns the built composite, or nil before Setup.
func (e *Experiment) Composite() *composite.Composite {
	return e.composite
}

// Engine returns the engine for step-wise driving, or nil before Setup.
func (e *Experiment) Engine() *engine.Engine {
	return e.engine
}

// RunBatch runs independent experiments concurrently. Results keep the order
// of cfgs; a failing experiment does not stop the others and the first error
// is returned after all runs finish. opts apply to every experiment, so any
// observer or emitter they carry must be safe for concurrent use.
func RunBatch(ctx context.Context, cfgs []*config.Composite, registry *Registry, workers int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(cfgs))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, cfg := range cfgs {
		g.Go(func() error {
			exp := New(cfg, registry, opts...)
			if err := exp.Setup(); err != nil {
				return fmt.Errorf("%s: %w", cfg.Name, err)
			}
			res, err := exp.Run(ctx)
			results[i] = res
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Name, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}
