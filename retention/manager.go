package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/telemetrykit/eventlog"
	"github.com/jonwraymond/telemetrykit/metrics"
	"github.com/jonwraymond/telemetrykit/observe"
)

// Config configures a Manager.
type Config struct {
	// ResetInterval is how often the reset cycle runs.
	// Default: 1 hour
	ResetInterval time.Duration

	// ResetCeiling is the TotalRequests value the aggregate must exceed
	// before it is reset. Default: 100000
	ResetCeiling uint64

	// RotateInterval is how often the rotation cycle runs.
	// Default: 24 hours
	RotateInterval time.Duration

	// Rotation decides which streams are rotated.
	// Default: eventlog.DefaultRotationPolicy()
	Rotation eventlog.RotationPolicy

	// Instrumentation receives logs, reset counts and cycle spans.
	Instrumentation observe.Instrumentation

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Manager owns the reset and rotation loops.
//
// Contract:
// - Concurrency: cycles may be called directly while the loops run.
// - Lifecycle: Start once; Stop cancels both loops and waits for them.
type Manager struct {
	agg  *metrics.Aggregator
	sink *eventlog.Sink
	cfg  Config
	inst observe.Instrumentation

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager creates a manager for agg and sink.
func NewManager(agg *metrics.Aggregator, sink *eventlog.Sink, cfg Config) *Manager {
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = time.Hour
	}
	if cfg.ResetCeiling == 0 {
		cfg.ResetCeiling = 100_000
	}
	if cfg.RotateInterval <= 0 {
		cfg.RotateInterval = 24 * time.Hour
	}
	if cfg.Rotation == (eventlog.RotationPolicy{}) {
		cfg.Rotation = eventlog.DefaultRotationPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	inst := cfg.Instrumentation.WithDefaults()
	inst.Logger = inst.Logger.WithComponent("retention")

	return &Manager{agg: agg, sink: sink, cfg: cfg, inst: inst}
}

// ResetCycle resets the aggregate if TotalRequests exceeds the ceiling and
// records a notice with the previous total. It reports whether a reset
// happened.
func (m *Manager) ResetCycle(ctx context.Context) (bool, error) {
	var reset bool
	err := m.inst.RunJob(ctx, "retention.reset", func(ctx context.Context) error {
		prev, ok := m.agg.ResetIfAbove(m.cfg.ResetCeiling)
		if !ok {
			return nil
		}
		reset = true

		m.inst.Metrics.RecordReset(ctx, prev)
		m.inst.Logger.Info(ctx, "metrics reset",
			observe.F("previous_total", prev),
			observe.F("ceiling", m.cfg.ResetCeiling),
		)
		return m.sink.Notice(ctx, eventlog.NoticeEvent{
			Timestamp: m.cfg.Now(),
			Level:     eventlog.LevelInfo,
			Message:   "metrics reset",
			Context: map[string]any{
				"previous_total_requests": prev,
				"ceiling":                 m.cfg.ResetCeiling,
			},
		})
	})
	return reset, err
}

// RotationCycle rotates every stream that exceeds the rotation policy and
// returns the new paths of the rotated files. A failure on one stream does
// not stop the others; all failures are joined.
func (m *Manager) RotationCycle(ctx context.Context) ([]string, error) {
	var rotated []string
	err := m.inst.RunJob(ctx, "retention.rotate", func(ctx context.Context) error {
		now := m.cfg.Now()
		var errs []error
		for _, stream := range eventlog.Streams {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			reason, err := m.sink.NeedsRotation(stream, m.cfg.Rotation, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", eventlog.ErrRotate, stream, err))
				continue
			}
			if reason == eventlog.RotateNone {
				continue
			}
			path, err := m.sink.Rotate(stream, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if path == "" {
				continue
			}
			rotated = append(rotated, path)
			m.inst.Logger.Info(ctx, "log stream rotated",
				observe.F("stream", string(stream)),
				observe.F("reason", string(reason)),
				observe.F("path", path),
			)
		}
		return errors.Join(errs...)
	})
	return rotated, err
}

// Start launches both loops. It returns immediately; the loops stop when ctx
// is cancelled or Stop is called. Starting a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	m.cancel = cancel
	m.group = g

	g.Go(func() error {
		m.loop(ctx, m.cfg.ResetInterval, func(ctx context.Context) {
			_, _ = m.ResetCycle(ctx)
		})
		return nil
	})
	g.Go(func() error {
		m.loop(ctx, m.cfg.RotateInterval, func(ctx context.Context) {
			_, _ = m.RotationCycle(ctx)
		})
		return nil
	})
}

func (m *Manager) loop(ctx context.Context, every time.Duration, cycle func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// Stop cancels the loops and waits for any in-flight cycle to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, g := m.cancel, m.group
	m.cancel, m.group = nil, nil
	m.mu.Unlock()

	if g == nil {
		return
	}
	cancel()
	_ = g.Wait()
}
