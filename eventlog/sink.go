package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/telemetrykit/observe"
	"github.com/jonwraymond/telemetrykit/resilience"
)

// Options configures a Sink.
type Options struct {
	// Dir is the directory holding the stream files. It is created on
	// first write if absent. Required.
	Dir string

	// Fallback receives write and rotation failures. Default: no-op.
	Fallback observe.Logger

	// Metrics counts dropped events. Default: no-op.
	Metrics observe.Metrics

	// Breaker configures the per-stream circuit breaker.
	Breaker resilience.CircuitBreakerConfig

	// FallbackLimit throttles fallback reports across all streams.
	FallbackLimit resilience.RateLimiterConfig

	// Now is the clock used for record timestamps. Default: time.Now
	Now func() time.Time
}

// Sink appends events to per-stream files.
//
// Contract:
// - Concurrency: safe for concurrent use; each stream has its own lock.
// - Errors: Write returns errors for direct callers but never panics.
type Sink struct {
	dir      string
	streams  map[Stream]*stream
	fallback observe.Logger
	metrics  observe.Metrics
	limiter  *resilience.RateLimiter
	now      func() time.Time
	closed   atomic.Bool
}

type stream struct {
	name    Stream
	path    string
	breaker *resilience.CircuitBreaker
	dropped atomic.Uint64

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewSink creates a sink rooted at opts.Dir. Files are opened lazily.
func NewSink(opts Options) (*Sink, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: directory is required", ErrWrite)
	}
	if opts.Fallback == nil {
		opts.Fallback = observe.NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.NoopMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Sink{
		dir:      opts.Dir,
		streams:  make(map[Stream]*stream, len(Streams)),
		fallback: opts.Fallback.WithComponent("eventlog"),
		metrics:  opts.Metrics,
		limiter:  resilience.NewRateLimiter(opts.FallbackLimit),
		now:      opts.Now,
	}
	for _, name := range Streams {
		breakerCfg := opts.Breaker
		userHook := breakerCfg.OnStateChange
		breakerCfg.OnStateChange = func(from, to resilience.State) {
			if to == resilience.StateOpen {
				s.report(context.Background(), "event stream suspended after repeated write failures",
					observe.F("stream", string(name)))
			}
			if userHook != nil {
				userHook(from, to)
			}
		}
		s.streams[name] = &stream{
			name:    name,
			path:    filepath.Join(opts.Dir, name.FileName()),
			breaker: resilience.NewCircuitBreaker(breakerCfg),
		}
	}
	return s, nil
}

// Dir returns the directory the sink writes to.
func (s *Sink) Dir() string {
	return s.dir
}

// Path returns the active file path of a stream.
func (s *Sink) Path(name Stream) string {
	if st, ok := s.streams[name]; ok {
		return st.path
	}
	return ""
}

// Dropped returns how many records a stream has failed to persist.
func (s *Sink) Dropped(name Stream) uint64 {
	if st, ok := s.streams[name]; ok {
		return st.dropped.Load()
	}
	return 0
}

// StreamStatus describes the write path of one stream.
type StreamStatus struct {
	Stream   Stream `json:"stream"`
	Path     string `json:"path"`
	Dropped  uint64 `json:"dropped"`
	Breaker  string `json:"breaker"`
	Rejected uint64 `json:"rejected"`
	// LastFailure is zero until a write has failed.
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// Status reports every stream in Streams order.
func (s *Sink) Status() []StreamStatus {
	out := make([]StreamStatus, 0, len(Streams))
	for _, name := range Streams {
		st := s.streams[name]
		m := st.breaker.Metrics()
		out = append(out, StreamStatus{
			Stream:      name,
			Path:        st.path,
			Dropped:     st.dropped.Load(),
			Breaker:     m.State.String(),
			Rejected:    m.Rejected,
			LastFailure: m.LastFailure,
		})
	}
	return out
}

// Emit writes an event to the stream it belongs to.
func (s *Sink) Emit(ctx context.Context, ev Event) error {
	return s.Write(ctx, ev.Stream(), ev.Record())
}

// Write appends rec to the named stream as a single JSON line. A missing ID
// or timestamp is filled in. Failures are reported to the fallback logger
// and returned.
func (s *Sink) Write(ctx context.Context, name Stream, rec Record) error {
	st, ok := s.streams[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStream, name)
	}
	if s.closed.Load() {
		return ErrClosed
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	line, err := json.Marshal(rec)
	if err != nil {
		// Context and Details are caller-supplied and may hold values
		// encoding/json rejects; keep the rest of the record.
		rec.Context = map[string]any{"marshal_error": err.Error()}
		rec.Details = nil
		if line, err = json.Marshal(rec); err != nil {
			return s.drop(ctx, st, fmt.Errorf("%w: %s: %v", ErrWrite, name, err))
		}
	}
	line = append(line, '\n')

	if err := st.breaker.Allow(); err != nil {
		st.dropped.Add(1)
		s.metrics.RecordDropped(ctx, string(name))
		return fmt.Errorf("%w: %s", ErrSuspended, name)
	}

	err = st.append(s.dir, line)
	if errors.Is(err, ErrClosed) {
		st.breaker.Record(nil)
		return err
	}
	st.breaker.Record(err)
	if err != nil {
		return s.drop(ctx, st, fmt.Errorf("%w: %s: %v", ErrWrite, name, err))
	}
	return nil
}

func (s *Sink) drop(ctx context.Context, st *stream, err error) error {
	st.dropped.Add(1)
	s.metrics.RecordDropped(ctx, string(st.name))
	s.report(ctx, "event log write failed", observe.F("stream", string(st.name)), observe.F("error", err))
	return err
}

// report logs to the fallback channel unless throttled.
func (s *Sink) report(ctx context.Context, msg string, fields ...observe.Field) {
	if !s.limiter.Allow() {
		return
	}
	if n := s.limiter.TakeSuppressed(); n > 0 {
		fields = append(fields, observe.F("suppressed", n))
	}
	s.fallback.Error(ctx, msg, fields...)
}

func (st *stream) append(dir string, line []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrClosed
	}
	if st.file == nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(st.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		st.file = f
	}

	_, err := st.file.Write(line)
	return err
}

// openForRead opens the active file and returns it with the number of bytes
// fully written at that moment. Holding the lock across both keeps a
// concurrent Rotate from swapping the file between them.
func (st *stream) openForRead() (*os.File, int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	f, err := os.Open(st.path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (st *stream) shutdown() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	return st.closeLocked()
}

func (st *stream) closeLocked() error {
	if st.file == nil {
		return nil
	}
	err := st.file.Close()
	st.file = nil
	return err
}

// Error appends an error event.
func (s *Sink) Error(ctx context.Context, ev ErrorEvent) error {
	return s.Emit(ctx, ev)
}

// Access appends an access event after normalizing missing fields.
func (s *Sink) Access(ctx context.Context, ev AccessEvent) error {
	return s.Emit(ctx, ev.Normalize(s.now()))
}

// Performance appends a performance event.
func (s *Sink) Performance(ctx context.Context, ev PerformanceEvent) error {
	return s.Emit(ctx, ev)
}

// Notice appends an info or warning notice.
func (s *Sink) Notice(ctx context.Context, ev NoticeEvent) error {
	return s.Emit(ctx, ev)
}

// Close closes every open stream file. Later writes return ErrClosed.
func (s *Sink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	for _, name := range Streams {
		if err := s.streams[name].shutdown(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return firstErr
}
