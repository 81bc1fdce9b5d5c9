package metrics

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/jonwraymond/telemetrykit/observe"
)

// ControllerConfig configures the bounded-growth controller.
type ControllerConfig struct {
	// SampleEvery runs a pass on every Nth Observe call.
	// Default: 10
	SampleEvery int

	// MemoryTrigger is the heap utilization ratio above which the table is
	// pruned to LowWater once it is larger than HighWater.
	// Default: 0.8
	MemoryTrigger float64

	// HighWater is the table size that memory pressure must exceed before
	// pruning. Default: 100
	HighWater int

	// LowWater is the table size after pruning. Default: 50
	LowWater int

	// MaxEndpoints is a hard cap applied regardless of memory pressure.
	// Default: 1000
	MaxEndpoints int

	// Memory samples heap usage. Default: RuntimeMemory(0)
	Memory MemoryReader

	// ReclaimMemory asks the runtime to return freed memory to the OS after
	// an eviction. Default: false
	ReclaimMemory bool

	// Reclaim is the reclamation hook. Default: debug.FreeOSMemory
	Reclaim func()

	// Instrumentation receives logs, eviction counts and pass spans.
	Instrumentation observe.Instrumentation
}

// EvictionReason says why a pass pruned the table.
type EvictionReason string

const (
	EvictNone     EvictionReason = ""
	EvictMemory   EvictionReason = "memory"
	EvictCapacity EvictionReason = "capacity"
)

// Pass is the outcome of one controller run.
type Pass struct {
	Memory    MemoryReading
	SizeAfter int
	Evicted   int
	Reason    EvictionReason
}

// Controller keeps the aggregator's endpoint table bounded.
//
// Contract:
// - Concurrency: safe for concurrent use; overlapping passes are skipped.
// - Errors: never propagates failures; reclamation errors are logged.
type Controller struct {
	agg  *Aggregator
	cfg  ControllerConfig
	inst observe.Instrumentation

	calls   atomic.Uint64
	running atomic.Bool
}

// NewController creates a controller for agg.
func NewController(agg *Aggregator, cfg ControllerConfig) *Controller {
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = 10
	}
	if cfg.MemoryTrigger <= 0 || cfg.MemoryTrigger >= 1 {
		cfg.MemoryTrigger = 0.8
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = 100
	}
	if cfg.LowWater <= 0 || cfg.LowWater > cfg.HighWater {
		cfg.LowWater = cfg.HighWater / 2
	}
	if cfg.MaxEndpoints <= 0 {
		cfg.MaxEndpoints = 1000
	}
	if cfg.MaxEndpoints < cfg.HighWater {
		cfg.MaxEndpoints = cfg.HighWater
	}
	if cfg.Memory == nil {
		cfg.Memory = RuntimeMemory(0)
	}
	if cfg.Reclaim == nil {
		cfg.Reclaim = debug.FreeOSMemory
	}

	inst := cfg.Instrumentation.WithDefaults()
	inst.Logger = inst.Logger.WithComponent("metrics.growth")

	return &Controller{agg: agg, cfg: cfg, inst: inst}
}

// Config returns the effective configuration after defaults.
func (c *Controller) Config() ControllerConfig {
	return c.cfg
}

// Observe counts one record and runs a pass on every SampleEvery-th call.
func (c *Controller) Observe(ctx context.Context) {
	if c.calls.Add(1)%uint64(c.cfg.SampleEvery) != 0 {
		return
	}
	c.Run(ctx)
}

// Run performs one pass immediately. If another pass is in progress it
// returns a zero Pass without doing anything.
func (c *Controller) Run(ctx context.Context) Pass {
	if !c.running.CompareAndSwap(false, true) {
		return Pass{}
	}
	defer c.running.Store(false)

	var pass Pass
	_ = c.inst.RunJob(ctx, "growth", func(ctx context.Context) error {
		var err error
		pass, err = c.run(ctx)
		return err
	})
	return pass
}

func (c *Controller) run(ctx context.Context) (Pass, error) {
	// Read memory outside the aggregator's lock.
	pass := Pass{Memory: c.cfg.Memory()}
	size := c.agg.Len()

	switch {
	case size > c.cfg.MaxEndpoints:
		pass.Reason = EvictCapacity
	case pass.Memory.Ratio() > c.cfg.MemoryTrigger && size > c.cfg.HighWater:
		pass.Reason = EvictMemory
	default:
		pass.SizeAfter = size
		return pass, nil
	}

	pass.Evicted = c.agg.RetainRecent(c.cfg.LowWater)
	pass.SizeAfter = c.agg.Len()
	if pass.Evicted == 0 {
		return pass, nil
	}

	c.inst.Metrics.RecordEviction(ctx, pass.Evicted)
	c.inst.Logger.Info(ctx, "endpoint table pruned",
		observe.F("reason", string(pass.Reason)),
		observe.F("evicted", pass.Evicted),
		observe.F("retained", pass.SizeAfter),
		observe.F("heap_used_percent", pass.Memory.Percent()),
	)

	if c.cfg.ReclaimMemory {
		if err := c.reclaim(); err != nil {
			return pass, err
		}
	}
	return pass, nil
}

func (c *Controller) reclaim() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrReclaim, r)
		}
	}()
	c.cfg.Reclaim()
	return nil
}
