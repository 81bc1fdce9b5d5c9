package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/telemetrykit/observe"
)

// DefaultSlowThreshold is the response time above which a request is slow.
const DefaultSlowThreshold = 3 * time.Second

// EndpointKey identifies an endpoint. Both parts are compared case-sensitively.
type EndpointKey struct {
	Method string
	Route  string
}

// String returns "METHOD route".
func (k EndpointKey) String() string {
	return k.Method + " " + k.Route
}

// MarshalText lets EndpointKey be used as a JSON object key.
func (k EndpointKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the "METHOD route" form.
func (k *EndpointKey) UnmarshalText(text []byte) error {
	method, route, ok := strings.Cut(string(text), " ")
	if !ok {
		return fmt.Errorf("metrics: malformed endpoint key %q", text)
	}
	k.Method, k.Route = method, route
	return nil
}

// EndpointStats is the running aggregate for one endpoint.
type EndpointStats struct {
	Count               uint64    `json:"count"`
	ErrorCount          uint64    `json:"error_count"`
	TotalResponseTimeMs uint64    `json:"total_response_time_ms"`
	AvgResponseTimeMs   uint64    `json:"avg_response_time_ms"`
	SlowCount           uint64    `json:"slow_count"`
	LastAccessedAt      time.Time `json:"last_accessed_at"`
}

// AccessSample is the part of an access event the aggregator consumes.
type AccessSample struct {
	// Timestamp becomes the endpoint's LastAccessedAt. Zero means now.
	Timestamp time.Time
	Method    string
	Route     string
	// StatusCode >= 400 counts as an error.
	StatusCode int
	// ResponseTimeMs below zero is treated as zero.
	ResponseTimeMs int64
}

// Snapshot is a point-in-time copy of the aggregate state.
type Snapshot struct {
	TotalRequests    uint64                        `json:"total_requests"`
	ErrorCount       uint64                        `json:"error_count"`
	SlowRequestCount uint64                        `json:"slow_request_count"`
	Endpoints        map[EndpointKey]EndpointStats `json:"endpoints"`
	StartedAt        time.Time                     `json:"started_at"`
	TakenAt          time.Time                     `json:"taken_at"`
	Uptime           time.Duration                 `json:"uptime_ns"`

	RequestsPerMinute float64 `json:"requests_per_minute"`
	ErrorRatePercent  float64 `json:"error_rate_percent"`
	SlowRatePercent   float64 `json:"slow_rate_percent"`
}

// Config configures an Aggregator.
type Config struct {
	// SlowThreshold is the response time above which a request counts as slow.
	// Default: 3 seconds
	SlowThreshold time.Duration

	// Metrics mirrors every record into OpenTelemetry instruments.
	// Default: no-op
	Metrics observe.Metrics

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Aggregator maintains the process-lifetime request counters and the
// per-endpoint table.
//
// Contract:
// - Concurrency: safe for concurrent use; one mutex guards all state.
// - Errors: Record never fails; malformed samples are coerced to defaults.
// - Ownership: Snapshot returns copies; callers never see the live table.
type Aggregator struct {
	slowMs  uint64
	metrics observe.Metrics
	now     func() time.Time

	mu        sync.Mutex
	total     uint64
	errors    uint64
	slow      uint64
	endpoints map[EndpointKey]*EndpointStats
	startedAt time.Time
}

// NewAggregator creates an empty aggregator started now.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Aggregator{
		slowMs:    uint64(cfg.SlowThreshold.Milliseconds()),
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		endpoints: make(map[EndpointKey]*EndpointStats),
		startedAt: cfg.Now(),
	}
}

// Record adds one request to the totals and to its endpoint's entry.
func (a *Aggregator) Record(ctx context.Context, s AccessSample) {
	s = a.normalize(s)
	ms := uint64(s.ResponseTimeMs)
	isErr := s.StatusCode >= 400
	isSlow := ms > a.slowMs
	key := EndpointKey{Method: s.Method, Route: s.Route}

	a.mu.Lock()
	a.total++
	if isErr {
		a.errors++
	}
	if isSlow {
		a.slow++
	}

	st, ok := a.endpoints[key]
	if !ok {
		st = &EndpointStats{}
		a.endpoints[key] = st
	}
	st.Count++
	st.TotalResponseTimeMs += ms
	st.AvgResponseTimeMs = st.TotalResponseTimeMs / st.Count
	if isErr {
		st.ErrorCount++
	}
	if isSlow {
		st.SlowCount++
	}
	if s.Timestamp.After(st.LastAccessedAt) {
		st.LastAccessedAt = s.Timestamp
	}
	a.mu.Unlock()

	a.metrics.RecordAccess(ctx, observe.Access{
		Method:     s.Method,
		Route:      s.Route,
		StatusCode: s.StatusCode,
		Duration:   time.Duration(s.ResponseTimeMs) * time.Millisecond,
		Error:      isErr,
		Slow:       isSlow,
	})
}

func (a *Aggregator) normalize(s AccessSample) AccessSample {
	if s.Timestamp.IsZero() {
		s.Timestamp = a.now()
	}
	if s.Method == "" {
		s.Method = "UNKNOWN"
	}
	if s.Route == "" {
		s.Route = "/"
	}
	if s.ResponseTimeMs < 0 {
		s.ResponseTimeMs = 0
	}
	return s
}

// Snapshot returns a deep copy of the current state with derived rates.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	snap := Snapshot{
		TotalRequests:    a.total,
		ErrorCount:       a.errors,
		SlowRequestCount: a.slow,
		Endpoints:        make(map[EndpointKey]EndpointStats, len(a.endpoints)),
		StartedAt:        a.startedAt,
	}
	for k, st := range a.endpoints {
		snap.Endpoints[k] = *st
	}
	a.mu.Unlock()

	snap.TakenAt = a.now()
	snap.Uptime = snap.TakenAt.Sub(snap.StartedAt)
	if snap.Uptime < 0 {
		snap.Uptime = 0
	}
	if snap.TotalRequests > 0 {
		if secs := snap.Uptime.Seconds(); secs > 0 {
			snap.RequestsPerMinute = round2(float64(snap.TotalRequests) / secs * 60)
		}
		snap.ErrorRatePercent = round2(Percent(snap.ErrorCount, snap.TotalRequests))
		snap.SlowRatePercent = round2(Percent(snap.SlowRequestCount, snap.TotalRequests))
	}
	return snap
}

// Len returns the number of endpoints currently tracked.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.endpoints)
}

// Reset zeroes every counter, empties the endpoint table and restarts the
// uptime clock.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

// ResetIfAbove resets the aggregate when TotalRequests exceeds ceiling. It
// returns the total before the reset and whether a reset happened. The check
// and the reset happen under one lock acquisition.
func (a *Aggregator) ResetIfAbove(ceiling uint64) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.total <= ceiling {
		return a.total, false
	}
	prev := a.total
	a.resetLocked()
	return prev, true
}

func (a *Aggregator) resetLocked() {
	a.total, a.errors, a.slow = 0, 0, 0
	a.endpoints = make(map[EndpointKey]*EndpointStats)
	a.startedAt = a.now()
}

// RetainRecent keeps the n endpoints with the most recent LastAccessedAt and
// drops the rest, returning how many were removed. Ties are broken by key so
// the result is deterministic. Totals are not changed.
func (a *Aggregator) RetainRecent(n int) int {
	if n < 0 {
		n = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.endpoints) <= n {
		return 0
	}

	type entry struct {
		key   EndpointKey
		stats *EndpointStats
	}
	entries := make([]entry, 0, len(a.endpoints))
	for k, st := range a.endpoints {
		entries = append(entries, entry{key: k, stats: st})
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].stats.LastAccessedAt, entries[j].stats.LastAccessedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].key.String() < entries[j].key.String()
	})

	kept := make(map[EndpointKey]*EndpointStats, n)
	for _, e := range entries[:n] {
		kept[e.key] = e.stats
	}
	removed := len(a.endpoints) - n
	a.endpoints = kept
	return removed
}

// Percent returns part/total*100, or 0 when total is 0.
func Percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
