// Package dispatcher issues a fixed number of operations through a
// concurrency gate and waits for all of them to finish.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"octapulse/internal/collector"
	"octapulse/internal/core"
	"octapulse/internal/gate"
	"octapulse/internal/ratelimit"
)

// ErrInvalidConfig is returned by Run before anything is dispatched.
var ErrInvalidConfig = errors.New("invalid run configuration")

// Result is what one Run produced.
type Result struct {
	Label   string
	Stats   collector.RunStats
	Elapsed time.Duration
	// Issued is how many measured operations were started. It equals
	// TotalRequests unless the run was interrupted.
	Issued      int
	Interrupted bool
}

// Dispatcher runs phases. A Dispatcher may be reused for several phases
// but runs them one at a time.
type Dispatcher struct {
	clock    core.Clock
	observer core.Observer
	logger   *zap.Logger
	inflight atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for latency and elapsed time.
func WithClock(c core.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithObservers registers observers notified about every measured
// operation.
func WithObservers(obs ...core.Observer) Option {
	return func(d *Dispatcher) {
		if len(obs) == 1 {
			d.observer = obs[0]
			return
		}
		d.observer = core.Observers(obs)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clock:    core.RealClock{},
		observer: core.NopObserver,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Inflight returns the number of operations started but not finished.
func (d *Dispatcher) Inflight() int {
	return int(d.inflight.Load())
}

// Run issues cfg.TotalRequests operations built by factory, never more than
// cfg.Concurrency at once, and returns after every one of them completed.
//
// Operations run detached from ctx: cancelling ctx stops new operations
// from being issued but never aborts one that already started. In that case
// the result is marked Interrupted and holds what completed.
func (d *Dispatcher) Run(ctx context.Context, cfg core.RunConfig, label string, factory core.Factory) (Result, error) {
	if err := validate(cfg, factory); err != nil {
		return Result{Label: label}, err
	}

	g := gate.New(cfg.Concurrency)
	pacer := ratelimit.New(cfg.RatePerSec)

	log := d.logger.With(zap.String("phase", label))

	if cfg.Warmup > 0 {
		log.Debug("warmup started", zap.Int("operations", cfg.Warmup))
		if _, interrupted := d.dispatch(ctx, g, pacer, cfg.Warmup, factory, nil); interrupted {
			log.Info("interrupted during warmup")
			return Result{
				Label:       label,
				Stats:       collector.NewRecorder(0).Snapshot(),
				Interrupted: true,
			}, nil
		}
	}

	rec := collector.NewRecorder(cfg.TotalRequests)
	log.Debug("dispatch started",
		zap.Int("total", cfg.TotalRequests),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("pacing", pacer.Interval()))

	d.observer.OnStart(label, cfg.TotalRequests)
	start := d.clock.Now()
	issued, interrupted := d.dispatch(ctx, g, pacer, cfg.TotalRequests, factory, rec)
	elapsed := d.clock.Since(start)
	d.observer.OnFinish(label)

	res := Result{
		Label:       label,
		Stats:       rec.Snapshot(),
		Elapsed:     elapsed,
		Issued:      issued,
		Interrupted: interrupted,
	}
	log.Debug("dispatch finished",
		zap.Int("issued", issued),
		zap.Uint64("completed", res.Stats.Completed()),
		zap.Duration("elapsed", elapsed),
		zap.Bool("interrupted", interrupted))
	return res, nil
}

func validate(cfg core.RunConfig, factory core.Factory) error {
	switch {
	case factory == nil:
		return fmt.Errorf("%w: factory is nil", ErrInvalidConfig)
	case cfg.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, cfg.Concurrency)
	case cfg.TotalRequests < 0:
		return fmt.Errorf("%w: total requests must not be negative, got %d", ErrInvalidConfig, cfg.TotalRequests)
	case cfg.Warmup < 0:
		return fmt.Errorf("%w: warmup must not be negative, got %d", ErrInvalidConfig, cfg.Warmup)
	}
	return nil
}

// dispatch starts n operations and joins them. With a nil recorder the
// outcomes are discarded and observers are not told.
func (d *Dispatcher) dispatch(ctx context.Context, g *gate.Gate, pacer *ratelimit.Pacer,
	n int, factory core.Factory, rec *collector.Recorder) (issued int, interrupted bool) {
	var wg sync.WaitGroup
	opCtx := context.WithoutCancel(ctx)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			interrupted = true
			break
		}
		if err := g.Acquire(ctx); err != nil {
			interrupted = true
			break
		}

		op := build(factory)
		d.inflight.Add(1)
		wg.Add(1)
		issued++

		go func() {
			defer wg.Done()
			defer g.Release()
			defer d.inflight.Add(-1)

			t := d.execute(opCtx, op)
			if rec == nil {
				return
			}
			rec.Record(t)
			d.observer.OnComplete(t)
		}()
	}

	wg.Wait()
	return issued, interrupted
}

// execute times one operation. A panic becomes a transport failure.
func (d *Dispatcher) execute(ctx context.Context, op core.Operation) (t core.TimedOutcome) {
	start := d.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("operation panicked", zap.Any("panic", r))
			t = core.TimedOutcome{
				Outcome: core.Classify(0, fmt.Errorf("panic: %v", r)),
				Elapsed: d.clock.Since(start),
			}
		}
	}()

	code, err := op(ctx)
	return core.TimedOutcome{
		Outcome: core.Classify(code, err),
		Elapsed: d.clock.Since(start),
	}
}

var errNilOperation = errors.New("factory returned nil operation")

// build calls the factory. A panicking factory or a nil operation yields an
// operation that fails without I/O.
func build(factory core.Factory) (op core.Operation) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("factory panic: %v", r)
			op = func(context.Context) (int, error) { return 0, err }
		}
	}()

	op = factory()
	if op == nil {
		op = func(context.Context) (int, error) { return 0, errNilOperation }
	}
	return op
}
