package health

import (
	"context"

	"github.com/jonwraymond/telemetrykit/metrics"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// Threshold is the heap utilization pair in percent.
	// Default: warn above 80, fail above 90
	Threshold Threshold

	// Memory samples heap usage. Default: metrics.RuntimeMemory(0)
	Memory metrics.MemoryReader
}

// MemoryChecker checks heap utilization on its own, without a snapshot.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.Threshold == (Threshold{}) || config.Threshold.validate(CheckMemory) != nil {
		config.Threshold = DefaultThresholds().Memory
	}
	if config.Memory == nil {
		config.Memory = metrics.RuntimeMemory(0)
	}
	return &MemoryChecker{config: config}
}

// Name returns the name of this checker.
func (m *MemoryChecker) Name() string {
	return CheckMemory
}

// Check samples the heap and classifies it.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	reading := m.config.Memory()
	c := classify(CheckMemory, reading.Percent(), m.config.Threshold)

	details := map[string]any{
		"heap_used_bytes":  reading.HeapUsed,
		"heap_total_bytes": reading.HeapTotal,
		"usage_percent":    c.Observed,
		"threshold":        c.Threshold,
	}

	switch c.State {
	case StateFail:
		return Unhealthy(c.Message, ErrCheckFailed).WithDetails(details)
	case StateWarn:
		return Degraded(c.Message).WithDetails(details)
	default:
		return Healthy(c.Message).WithDetails(details)
	}
}
