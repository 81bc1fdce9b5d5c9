package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Access describes one completed HTTP request for instrument recording.
type Access struct {
	Method     string
	Route      string
	StatusCode int
	Duration   time.Duration
	Error      bool
	Slow       bool
}

// Metrics mirrors the in-process aggregates into OpenTelemetry instruments.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAccess records one request against its endpoint.
	RecordAccess(ctx context.Context, a Access)

	// RecordEviction records how many endpoint entries a growth pass removed.
	RecordEviction(ctx context.Context, evicted int)

	// RecordReset records a full reset of the aggregate counters.
	RecordReset(ctx context.Context, previousTotal uint64)

	// RecordDropped records an event that could not be written to its stream.
	RecordDropped(ctx context.Context, stream string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	requests     metric.Int64Counter
	errors       metric.Int64Counter
	slow         metric.Int64Counter
	durationHist metric.Float64Histogram
	evicted      metric.Int64Counter
	resets       metric.Int64Counter
	dropped      metric.Int64Counter
}

// NewMetrics creates the telemetrykit instruments on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	requests, err := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of recorded HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"http.server.errors",
		metric.WithDescription("Requests that completed with status >= 400"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	slow, err := meter.Int64Counter(
		"http.server.slow_requests",
		metric.WithDescription("Requests slower than the slow threshold"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"http.server.duration_ms",
		metric.WithDescription("Request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evicted, err := meter.Int64Counter(
		"telemetry.endpoints.evicted",
		metric.WithDescription("Endpoint entries removed by the growth controller"),
		metric.WithUnit("{endpoint}"),
	)
	if err != nil {
		return nil, err
	}

	resets, err := meter.Int64Counter(
		"telemetry.aggregate.resets",
		metric.WithDescription("Full resets of the aggregate counters"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"telemetry.events.dropped",
		metric.WithDescription("Events that could not be appended to their log stream"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		requests:     requests,
		errors:       errorCount,
		slow:         slow,
		durationHist: durationHist,
		evicted:      evicted,
		resets:       resets,
		dropped:      dropped,
	}, nil
}

// RecordAccess records metrics for a completed request.
func (m *metricsImpl) RecordAccess(ctx context.Context, a Access) {
	opt := metric.WithAttributes(
		attribute.String("http.request.method", a.Method),
		attribute.String("http.route", a.Route),
		attribute.String("http.response.status_code", strconv.Itoa(a.StatusCode)),
	)

	m.requests.Add(ctx, 1, opt)
	if a.Error {
		m.errors.Add(ctx, 1, opt)
	}
	if a.Slow {
		m.slow.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(a.Duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordEviction(ctx context.Context, evicted int) {
	if evicted <= 0 {
		return
	}
	m.evicted.Add(ctx, int64(evicted))
}

func (m *metricsImpl) RecordReset(ctx context.Context, previousTotal uint64) {
	m.resets.Add(ctx, 1)
}

func (m *metricsImpl) RecordDropped(ctx context.Context, stream string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("telemetry.stream", stream)))
}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordAccess(context.Context, Access)  {}
func (noopMetrics) RecordEviction(context.Context, int)   {}
func (noopMetrics) RecordReset(context.Context, uint64)   {}
func (noopMetrics) RecordDropped(context.Context, string) {}
