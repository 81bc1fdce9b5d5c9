package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jonwraymond/telemetrykit/eventlog"
	"github.com/jonwraymond/telemetrykit/observe"
)

// RequestIDHeader carries the request ID assigned by Middleware.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the ID Middleware assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Middleware records one access event per request.
//
// The endpoint route is the chi route pattern when the request was routed by
// chi, the net/http ServeMux pattern when set, and the raw path otherwise.
// An incoming X-Request-ID is kept; otherwise a UUID is assigned and echoed
// in the response. A panic in next is recorded as an error event and
// answered with 500.
func (e *Engine) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := e.now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		r = r.WithContext(ctx)

		rec := &responseRecorder{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				e.RecordError(ctx, eventlog.ErrorEvent{
					Timestamp: e.now(),
					Message:   fmt.Sprintf("panic: %v", p),
					Stack:     string(debug.Stack()),
					Request:   requestMeta(r, reqID),
				})
				if !rec.wroteHeader {
					http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				} else {
					rec.status = http.StatusInternalServerError
				}
			}

			elapsed := e.now().Sub(start)
			size := rec.bytes
			e.RecordAccess(ctx, eventlog.AccessEvent{
				Timestamp:     start,
				Method:        r.Method,
				Route:         routeOf(r),
				StatusCode:    rec.statusCode(),
				ResponseTime:  &elapsed,
				Client:        clientMeta(r),
				ContentLength: &size,
			})
		}()

		next.ServeHTTP(rec, r)
	})
}

// routeOf returns the template the request was routed by, else its path.
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return r.URL.Path
}

func clientMeta(r *http.Request) *eventlog.ClientMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return &eventlog.ClientMeta{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}

func requestMeta(r *http.Request, reqID string) *eventlog.RequestMeta {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if redactedHeader(name) {
			headers[name] = "[REDACTED]"
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}
	return &eventlog.RequestMeta{
		RequestID:  reqID,
		Method:     r.Method,
		URL:        r.URL.String(),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Headers:    headers,
	}
}

func redactedHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range observe.RedactedFields {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.wroteHeader {
		return
	}
	rr.status = code
	rr.wroteHeader = true
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += int64(n)
	return n, err
}

func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		if !rr.wroteHeader {
			rr.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("telemetry: response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

