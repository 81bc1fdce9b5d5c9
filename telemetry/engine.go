package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/telemetrykit/config"
	"github.com/jonwraymond/telemetrykit/eventlog"
	"github.com/jonwraymond/telemetrykit/health"
	"github.com/jonwraymond/telemetrykit/metrics"
	"github.com/jonwraymond/telemetrykit/observe"
	"github.com/jonwraymond/telemetrykit/retention"
)

// Engine records events and serves the aggregate and health views.
type Engine struct {
	cfg       config.Config
	inst      observe.Instrumentation
	log       observe.Logger
	now       func() time.Time
	startedAt time.Time

	sink      *eventlog.Sink
	agg       *metrics.Aggregator
	growth    *metrics.Controller
	retention *retention.Manager
	memory    metrics.MemoryReader

	memFlight singleflight.Group
	closed    atomic.Bool
}

// New validates cfg and wires the engine. It does not start the retention
// loops; call Start for that.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.inst.Logger == nil {
		o.inst.Logger = observe.NewLogger(cfg.Log.Level)
	}
	inst := o.inst.WithDefaults()
	if o.now == nil {
		o.now = time.Now
	}
	if o.memory == nil {
		o.memory = metrics.RuntimeMemory(cfg.Growth.MaxHeapBytes)
	}

	sink, err := eventlog.NewSink(eventlog.Options{
		Dir:      cfg.Log.Dir,
		Fallback: inst.Logger,
		Metrics:  inst.Metrics,
		Now:      o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	agg := metrics.NewAggregator(metrics.Config{
		SlowThreshold: cfg.Metrics.SlowThreshold,
		Metrics:       inst.Metrics,
		Now:           o.now,
	})

	growth := metrics.NewController(agg, metrics.ControllerConfig{
		SampleEvery:     cfg.Metrics.SampleEvery,
		MemoryTrigger:   cfg.Growth.MemoryTrigger,
		HighWater:       cfg.Growth.HighWater,
		LowWater:        cfg.Growth.LowWater,
		MaxEndpoints:    cfg.Growth.MaxEndpoints,
		Memory:          o.memory,
		ReclaimMemory:   cfg.Growth.ReclaimMemory,
		Reclaim:         o.reclaim,
		Instrumentation: inst,
	})

	ret := retention.NewManager(agg, sink, retention.Config{
		ResetInterval:  cfg.Retention.ResetInterval,
		ResetCeiling:   cfg.Retention.ResetCeiling,
		RotateInterval: cfg.Retention.RotateInterval,
		Rotation: eventlog.RotationPolicy{
			MaxAge:  cfg.Retention.MaxAge,
			MaxSize: cfg.Retention.MaxSizeBytes,
		},
		Instrumentation: inst,
		Now:             o.now,
	})

	return &Engine{
		cfg:       cfg,
		inst:      inst,
		log:       inst.Logger.WithComponent("telemetry"),
		now:       o.now,
		startedAt: o.now(),
		sink:      sink,
		agg:       agg,
		growth:    growth,
		retention: ret,
		memory:    o.memory,
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// RecordAccess appends an access record and adds it to the aggregate.
// Missing fields are defaulted first so the log line and the aggregate agree.
func (e *Engine) RecordAccess(ctx context.Context, ev eventlog.AccessEvent) {
	if e.closed.Load() {
		return
	}
	defer e.contain(ctx, "record_access")

	ev = ev.Normalize(e.now())
	_ = e.sink.Access(ctx, ev)

	e.agg.Record(ctx, metrics.AccessSample{
		Timestamp:      ev.Timestamp,
		Method:         ev.Method,
		Route:          ev.Route,
		StatusCode:     ev.StatusCode,
		ResponseTimeMs: ev.ResponseTimeMs(),
	})
	e.growth.Observe(ctx)
}

// RecordError appends an error record. A nil System is filled with the
// current process state.
func (e *Engine) RecordError(ctx context.Context, ev eventlog.ErrorEvent) {
	if e.closed.Load() {
		return
	}
	defer e.contain(ctx, "record_error")

	if ev.System == nil {
		ev.System = eventlog.CaptureSystem(e.startedAt)
	}
	_ = e.sink.Error(ctx, ev)
}

// RecordPerformance appends a performance record. An operation slower than
// the slow threshold also records a warning notice.
func (e *Engine) RecordPerformance(ctx context.Context, ev eventlog.PerformanceEvent) {
	if e.closed.Load() {
		return
	}
	defer e.contain(ctx, "record_performance")

	_ = e.sink.Performance(ctx, ev)

	if ev.Duration > e.cfg.Metrics.SlowThreshold {
		op := ev.Record().Operation
		_ = e.sink.Notice(ctx, eventlog.NoticeEvent{
			Timestamp: ev.Timestamp,
			Level:     eventlog.LevelWarning,
			Message:   "slow operation: " + op,
			Context: map[string]any{
				"operation":    op,
				"duration_ms":  ev.Duration.Milliseconds(),
				"threshold_ms": e.cfg.Metrics.SlowThreshold.Milliseconds(),
			},
		})
	}
}

// RecordNotice appends an info or warning notice to the error stream.
func (e *Engine) RecordNotice(ctx context.Context, ev eventlog.NoticeEvent) {
	if e.closed.Load() {
		return
	}
	defer e.contain(ctx, "record_notice")
	_ = e.sink.Notice(ctx, ev)
}

// contain stops a panic raised while recording from reaching the caller.
func (e *Engine) contain(ctx context.Context, op string) {
	if r := recover(); r != nil {
		e.log.Error(ctx, "recording panicked",
			observe.F("op", op),
			observe.F("panic", fmt.Sprint(r)),
			observe.F("stack", string(debug.Stack())),
		)
	}
}

// Snapshot returns a copy of the current aggregate.
func (e *Engine) Snapshot() metrics.Snapshot {
	return e.agg.Snapshot()
}

// Health evaluates the current aggregate and heap usage. Concurrent callers
// share one memory reading.
func (e *Engine) Health(ctx context.Context) health.Report {
	v, _, _ := e.memFlight.Do("memory", func() (any, error) {
		return e.memory(), nil
	})
	mem, _ := v.(metrics.MemoryReading)
	return health.Evaluate(e.agg.Snapshot(), mem, e.cfg.Health)
}

// Checker exposes Health as a health.Checker named "telemetry".
func (e *Engine) Checker() health.Checker {
	return health.NewReportChecker("telemetry", e.Health)
}

// Tail returns up to limit records of a stream, most recent first.
func (e *Engine) Tail(stream eventlog.Stream, limit int) ([]eventlog.Record, error) {
	return e.sink.Tail(stream, limit)
}

// Dropped returns how many records a stream failed to persist.
func (e *Engine) Dropped(stream eventlog.Stream) uint64 {
	return e.sink.Dropped(stream)
}

// Streams reports the write path of every log stream.
func (e *Engine) Streams() []eventlog.StreamStatus {
	return e.sink.Status()
}

// Reset clears the aggregate, as the retention loop does past its ceiling.
func (e *Engine) Reset() {
	e.agg.Reset()
}

// Start launches the retention loops. They stop on ctx cancellation or Close.
func (e *Engine) Start(ctx context.Context) {
	if e.closed.Load() {
		return
	}
	e.retention.Start(ctx)
	e.log.Info(ctx, "telemetry engine started",
		observe.F("log_dir", e.sink.Dir()),
		observe.F("slow_threshold_ms", e.cfg.Metrics.SlowThreshold.Milliseconds()),
	)
}

// Close stops the retention loops, waiting for an in-flight cycle unless ctx
// expires first, and closes the log files. Record* calls made after Close
// returns are ignored and leave the aggregate unchanged.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		e.retention.Stop()
		close(stopped)
	}()

	var errs []error
	select {
	case <-stopped:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop retention: %w", ctx.Err()))
	}
	if err := e.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
