package observe

import (
	"context"
	"time"
)

// Instrumentation bundles the ambient observability handles that
// telemetrykit components receive.
type Instrumentation struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NoopInstrumentation returns an Instrumentation that records nothing.
func NoopInstrumentation() Instrumentation {
	return Instrumentation{
		Logger:  NoopLogger(),
		Metrics: NoopMetrics(),
		Tracer:  NoopTracer(),
	}
}

// WithDefaults fills any nil handle with its no-op counterpart.
func (in Instrumentation) WithDefaults() Instrumentation {
	if in.Logger == nil {
		in.Logger = NoopLogger()
	}
	if in.Metrics == nil {
		in.Metrics = NoopMetrics()
	}
	if in.Tracer == nil {
		in.Tracer = NoopTracer()
	}
	return in
}

// FromObserver builds Instrumentation from an Observer's providers.
func FromObserver(obs Observer) (Instrumentation, error) {
	m, err := NewMetrics(obs.Meter())
	if err != nil {
		return Instrumentation{}, err
	}
	return Instrumentation{
		Logger:  obs.Logger(),
		Metrics: m,
		Tracer:  NewTracer(obs.Tracer()),
	}, nil
}

// RunJob runs one pass of a background job inside a span and logs its
// outcome. Errors are recorded on the span and logged at warn level, then
// returned unchanged.
func (in Instrumentation) RunJob(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := in.Tracer.StartSpan(ctx, op)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	in.Tracer.EndSpan(span, err)

	fields := []Field{
		{Key: "job", Value: op},
		{Key: "duration_ms", Value: float64(duration.Milliseconds())},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		in.Logger.Warn(ctx, "job failed", fields...)
	} else {
		in.Logger.Debug(ctx, "job completed", fields...)
	}

	return err
}
