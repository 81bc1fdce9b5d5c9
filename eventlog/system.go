package eventlog

import (
	"os"
	"runtime"
	"time"
)

// SystemSnapshot is process state captured alongside an error.
type SystemSnapshot struct {
	Hostname       string  `json:"hostname,omitempty"`
	PID            int     `json:"pid"`
	GoVersion      string  `json:"go_version"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64  `json:"heap_sys_bytes"`
	NumGC          uint32  `json:"num_gc"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// CaptureSystem reads the current process state. startedAt is the process
// (or engine) start time used for the uptime figure.
func CaptureSystem(startedAt time.Time) *SystemSnapshot {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	host, _ := os.Hostname()

	snap := &SystemSnapshot{
		Hostname:       host,
		PID:            os.Getpid(),
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: stats.HeapAlloc,
		HeapSysBytes:   stats.HeapSys,
		NumGC:          stats.NumGC,
	}
	if !startedAt.IsZero() {
		snap.UptimeSeconds = time.Since(startedAt).Seconds()
	}
	return snap
}
