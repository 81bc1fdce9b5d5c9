package metrics

import (
	"math"
	"runtime"
	"runtime/debug"
)

// MemoryReading is one sample of heap usage.
type MemoryReading struct {
	HeapUsed  uint64 `json:"heap_used_bytes"`
	HeapTotal uint64 `json:"heap_total_bytes"`
}

// Ratio returns HeapUsed/HeapTotal, or 0 when HeapTotal is unknown.
func (m MemoryReading) Ratio() float64 {
	if m.HeapTotal == 0 {
		return 0
	}
	return float64(m.HeapUsed) / float64(m.HeapTotal)
}

// Percent returns the utilization as a percentage.
func (m MemoryReading) Percent() float64 {
	if m.HeapTotal == 0 {
		return 0
	}
	return float64(m.HeapUsed) * 100 / float64(m.HeapTotal)
}

// MemoryReader samples heap usage.
type MemoryReader func() MemoryReading

// RuntimeMemory returns a MemoryReader backed by runtime.ReadMemStats.
//
// HeapTotal is maxHeap when non-zero, otherwise the soft memory limit set
// via GOMEMLIMIT or debug.SetMemoryLimit, otherwise HeapSys.
func RuntimeMemory(maxHeap uint64) MemoryReader {
	return func() MemoryReading {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		total := maxHeap
		if total == 0 {
			if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
				total = uint64(limit)
			}
		}
		if total == 0 {
			total = stats.HeapSys
		}
		return MemoryReading{HeapUsed: stats.HeapAlloc, HeapTotal: total}
	}
}
