package eventlog

import (
	"time"
)

// Stream names one append-only log file.
type Stream string

const (
	StreamError       Stream = "error"
	StreamAccess      Stream = "access"
	StreamPerformance Stream = "performance"
)

// Streams lists every stream in a fixed order.
var Streams = []Stream{StreamError, StreamAccess, StreamPerformance}

// FileName returns the file the stream is appended to.
func (s Stream) FileName() string {
	switch s {
	case StreamError:
		return "errors.log"
	case StreamAccess:
		return "access.log"
	case StreamPerformance:
		return "performance.log"
	default:
		return ""
	}
}

// Valid reports whether s is one of the known streams.
func (s Stream) Valid() bool {
	return s.FileName() != ""
}

// Level is the severity stored on each record.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Kind identifies which event variant produced a record.
type Kind string

const (
	KindError       Kind = "error"
	KindAccess      Kind = "access"
	KindPerformance Kind = "performance"
	KindNotice      Kind = "notice"
)

// Default values substituted for missing event fields.
const (
	DefaultMethod       = "UNKNOWN"
	DefaultRoute        = "/"
	DefaultErrorMessage = "unknown error"
)

// RequestMeta describes the request an error occurred in.
type RequestMeta struct {
	RequestID  string            `json:"request_id,omitempty"`
	Method     string            `json:"method,omitempty"`
	URL        string            `json:"url,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// ClientMeta is optional caller information attached to access records.
type ClientMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// Record is the on-disk form of every event variant. Fields that do not
// apply to a variant are omitted from the JSON line.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Kind      Kind      `json:"kind"`

	Message string          `json:"message,omitempty"`
	Stack   string          `json:"stack,omitempty"`
	Context map[string]any  `json:"context,omitempty"`
	Details map[string]any  `json:"details,omitempty"`
	Request *RequestMeta    `json:"request,omitempty"`
	System  *SystemSnapshot `json:"system,omitempty"`

	Method         string      `json:"method,omitempty"`
	Route          string      `json:"route,omitempty"`
	StatusCode     int         `json:"status_code,omitempty"`
	ResponseTimeMs *int64      `json:"response_time_ms,omitempty"`
	Client         *ClientMeta `json:"client,omitempty"`
	ContentLength  *int64      `json:"content_length,omitempty"`

	Operation  string `json:"operation,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`

	// Synthetic marks a placeholder produced by Tail for an unreadable line.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Event is implemented by every event variant.
type Event interface {
	// Stream returns the stream the event is appended to.
	Stream() Stream

	// Record returns the serializable form of the event.
	Record() Record
}

// AccessEvent is one completed HTTP request.
type AccessEvent struct {
	Timestamp     time.Time
	Method        string
	Route         string
	StatusCode    int
	ResponseTime  *time.Duration
	Client        *ClientMeta
	ContentLength *int64
}

// Normalize substitutes defaults for missing fields: zero timestamp becomes
// now, empty method UNKNOWN, empty route "/", and a missing or negative
// response time 0.
func (e AccessEvent) Normalize(now time.Time) AccessEvent {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Method == "" {
		e.Method = DefaultMethod
	}
	if e.Route == "" {
		e.Route = DefaultRoute
	}
	if e.ResponseTime == nil || *e.ResponseTime < 0 {
		zero := time.Duration(0)
		e.ResponseTime = &zero
	}
	return e
}

// ResponseTimeMs returns the response time in whole milliseconds, 0 when unset.
func (e AccessEvent) ResponseTimeMs() int64 {
	if e.ResponseTime == nil || *e.ResponseTime < 0 {
		return 0
	}
	return e.ResponseTime.Milliseconds()
}

// IsError reports whether the status code counts as a failed request.
func (e AccessEvent) IsError() bool {
	return e.StatusCode >= 400
}

func (e AccessEvent) Stream() Stream { return StreamAccess }

func (e AccessEvent) Record() Record {
	ms := e.ResponseTimeMs()
	level := LevelInfo
	if e.StatusCode >= 500 {
		level = LevelError
	} else if e.StatusCode >= 400 {
		level = LevelWarning
	}
	return Record{
		Timestamp:      e.Timestamp,
		Level:          level,
		Kind:           KindAccess,
		Method:         e.Method,
		Route:          e.Route,
		StatusCode:     e.StatusCode,
		ResponseTimeMs: &ms,
		Client:         e.Client,
		ContentLength:  e.ContentLength,
	}
}

// ErrorEvent is an application error.
type ErrorEvent struct {
	Timestamp time.Time
	Message   string
	// Err supplies Message when Message is empty. It is not serialized.
	Err     error
	Stack   string
	Context map[string]any
	Request *RequestMeta
	System  *SystemSnapshot
}

func (e ErrorEvent) Stream() Stream { return StreamError }

func (e ErrorEvent) Record() Record {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = DefaultErrorMessage
	}
	return Record{
		Timestamp: e.Timestamp,
		Level:     LevelError,
		Kind:      KindError,
		Message:   msg,
		Stack:     e.Stack,
		Context:   e.Context,
		Request:   e.Request,
		System:    e.System,
	}
}

// PerformanceEvent is a timed operation.
type PerformanceEvent struct {
	Timestamp time.Time
	Operation string
	Duration  time.Duration
	Details   map[string]any
}

func (e PerformanceEvent) Stream() Stream { return StreamPerformance }

func (e PerformanceEvent) Record() Record {
	ms := e.Duration.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	op := e.Operation
	if op == "" {
		op = "unnamed"
	}
	return Record{
		Timestamp:  e.Timestamp,
		Level:      LevelInfo,
		Kind:       KindPerformance,
		Operation:  op,
		DurationMs: &ms,
		Details:    e.Details,
	}
}

// NoticeEvent is an informational or warning message. Notices share the
// error stream so that operational messages sit next to the errors they
// usually explain.
type NoticeEvent struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Context   map[string]any
	Details   map[string]any
}

func (e NoticeEvent) Stream() Stream { return StreamError }

func (e NoticeEvent) Record() Record {
	level := LevelInfo
	if e.Level == LevelWarning || e.Level == "warn" {
		level = LevelWarning
	}
	return Record{
		Timestamp: e.Timestamp,
		Level:     level,
		Kind:      KindNotice,
		Message:   e.Message,
		Context:   e.Context,
		Details:   e.Details,
	}
}

var (
	_ Event = AccessEvent{}
	_ Event = ErrorEvent{}
	_ Event = PerformanceEvent{}
	_ Event = NoticeEvent{}
)
