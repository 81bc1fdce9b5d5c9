package metrics

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/telemetrykit/observe"
)

func staticMemory(used, total uint64) MemoryReader {
	return func() MemoryReading {
		return MemoryReading{HeapUsed: used, HeapTotal: total}
	}
}

func fillEndpoints(agg *Aggregator, n int, base time.Time) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		agg.Record(ctx, AccessSample{
			Timestamp:  base.Add(time.Duration(i) * time.Millisecond),
			Method:     "GET",
			Route:      fmt.Sprintf("/e/%03d", i),
			StatusCode: 200,
		})
	}
}

// TestController_EvictsUnderMemoryPressure covers a 150 entry table at 85%
// heap utilization.
func TestController_EvictsUnderMemoryPressure(t *testing.T) {
	clock := newFakeClock()
	agg := NewAggregator(Config{Now: clock.Now})
	rec := &recordingMetrics{}
	ctrl := NewController(agg, ControllerConfig{
		Memory:          staticMemory(85, 100),
		Instrumentation: observe.Instrumentation{Metrics: rec},
	})
	fillEndpoints(agg, 150, clock.Now())

	pass := ctrl.Run(context.Background())

	if pass.Reason != EvictMemory || pass.Evicted != 100 || pass.SizeAfter != 50 {
		t.Errorf("pass = %+v, want memory/100/50", pass)
	}
	snap := agg.Snapshot()
	if len(snap.Endpoints) > 50 {
		t.Fatalf("Len = %d, want at most 50", len(snap.Endpoints))
	}
	for i := 100; i < 150; i++ {
		key := EndpointKey{"GET", fmt.Sprintf("/e/%03d", i)}
		if _, ok := snap.Endpoints[key]; !ok {
			t.Errorf("%s should be among the 50 most recent", key)
		}
	}
	if snap.TotalRequests != 150 {
		t.Errorf("TotalRequests = %d, want 150", snap.TotalRequests)
	}
	if rec.evicted != 100 {
		t.Errorf("RecordEviction total = %d, want 100", rec.evicted)
	}
}

func TestController_Policy(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		used      uint64
		reason    EvictionReason
		sizeAfter int
	}{
		{"low memory, large table", 150, 50, EvictNone, 150},
		{"high memory, small table", 100, 95, EvictNone, 100},
		{"exactly at trigger", 150, 80, EvictNone, 150},
		{"over hard cap, low memory", 1001, 10, EvictCapacity, 50},
		{"over trigger and high water", 101, 81, EvictMemory, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(Config{})
			fillEndpoints(agg, tt.size, time.Now())
			ctrl := NewController(agg, ControllerConfig{Memory: staticMemory(tt.used, 100)})

			pass := ctrl.Run(context.Background())
			if pass.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", pass.Reason, tt.reason)
			}
			if agg.Len() != tt.sizeAfter {
				t.Errorf("Len = %d, want %d", agg.Len(), tt.sizeAfter)
			}
		})
	}
}

func TestController_ObserveSamplesEveryN(t *testing.T) {
	agg := NewAggregator(Config{})
	fillEndpoints(agg, 120, time.Now())

	reads := 0
	ctrl := NewController(agg, ControllerConfig{
		SampleEvery: 10,
		Memory: func() MemoryReading {
			reads++
			return MemoryReading{HeapUsed: 10, HeapTotal: 100}
		},
	})

	ctx := context.Background()
	for i := 0; i < 35; i++ {
		ctrl.Observe(ctx)
	}
	if reads != 3 {
		t.Errorf("memory reads = %d, want 3", reads)
	}
}

func TestController_ReclaimPanicIsContained(t *testing.T) {
	var logs bytes.Buffer
	agg := NewAggregator(Config{})
	fillEndpoints(agg, 200, time.Now())

	ctrl := NewController(agg, ControllerConfig{
		Memory:        staticMemory(99, 100),
		ReclaimMemory: true,
		Reclaim:       func() { panic("not supported") },
		Instrumentation: observe.Instrumentation{
			Logger: observe.NewLoggerWithWriter("debug", &logs),
		},
	})

	pass := ctrl.Run(context.Background())
	if pass.Evicted != 150 {
		t.Errorf("Evicted = %d, want 150", pass.Evicted)
	}
	if !strings.Contains(logs.String(), "memory reclamation failed") {
		t.Errorf("expected reclamation failure in logs, got: %s", logs.String())
	}
}

func TestController_ReclaimCalledOnlyAfterEviction(t *testing.T) {
	calls := 0
	agg := NewAggregator(Config{})
	fillEndpoints(agg, 10, time.Now())
	ctrl := NewController(agg, ControllerConfig{
		Memory:        staticMemory(99, 100),
		ReclaimMemory: true,
		Reclaim:       func() { calls++ },
	})

	ctrl.Run(context.Background())
	if calls != 0 {
		t.Errorf("Reclaim called %d times without eviction", calls)
	}

	fillEndpoints(agg, 150, time.Now())
	ctrl.Run(context.Background())
	if calls != 1 {
		t.Errorf("Reclaim called %d times, want 1", calls)
	}
}

func TestController_PassSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	agg := NewAggregator(Config{})
	ctrl := NewController(agg, ControllerConfig{
		Memory:          staticMemory(1, 100),
		Instrumentation: observe.Instrumentation{Tracer: observe.NewTracer(tp.Tracer("test"))},
	})
	ctrl.Run(context.Background())

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "telemetry.growth" {
		t.Fatalf("spans = %v, want one telemetry.growth span", spans)
	}
}

func TestNewController_Defaults(t *testing.T) {
	cfg := NewController(NewAggregator(Config{}), ControllerConfig{}).Config()
	if cfg.SampleEvery != 10 || cfg.MemoryTrigger != 0.8 || cfg.HighWater != 100 ||
		cfg.LowWater != 50 || cfg.MaxEndpoints != 1000 || cfg.ReclaimMemory {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestMemoryReading_Ratio(t *testing.T) {
	if r := (MemoryReading{HeapUsed: 5}).Ratio(); r != 0 {
		t.Errorf("Ratio with unknown total = %v, want 0", r)
	}
	if r := (MemoryReading{HeapUsed: 85, HeapTotal: 100}).Percent(); r != 85 {
		t.Errorf("Percent = %v, want 85", r)
	}
	if got := RuntimeMemory(0)(); got.HeapTotal == 0 || got.HeapUsed == 0 {
		t.Errorf("RuntimeMemory reading = %+v", got)
	}
	if got := RuntimeMemory(1 << 40)(); got.HeapTotal != 1<<40 {
		t.Errorf("RuntimeMemory(max).HeapTotal = %d, want %d", got.HeapTotal, uint64(1<<40))
	}
}
