package telemetry

import (
	"time"

	"github.com/jonwraymond/telemetrykit/metrics"
	"github.com/jonwraymond/telemetrykit/observe"
)

type options struct {
	inst    observe.Instrumentation
	memory  metrics.MemoryReader
	now     func() time.Time
	reclaim func()
}

// Option customizes an Engine.
type Option func(*options)

// WithInstrumentation sets the logger, OpenTelemetry metrics and tracer used
// by every component. Nil handles fall back to no-ops, except Logger, which
// defaults to a stderr JSON logger at the configured level.
func WithInstrumentation(inst observe.Instrumentation) Option {
	return func(o *options) {
		o.inst = inst
	}
}

// WithLogger sets only the logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		o.inst.Logger = l
	}
}

// WithMemoryReader replaces the runtime heap reader used by the growth
// controller and the memory health check.
func WithMemoryReader(r metrics.MemoryReader) Option {
	return func(o *options) {
		o.memory = r
	}
}

// WithClock sets the clock used for event timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithReclaimFunc replaces debug.FreeOSMemory as the reclamation hook used
// when growth.reclaim_memory is enabled.
func WithReclaimFunc(fn func()) Option {
	return func(o *options) {
		o.reclaim = fn
	}
}
