package telemetry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/telemetrykit/eventlog"
	"github.com/jonwraymond/telemetrykit/health"
	"github.com/jonwraymond/telemetrykit/observe"
)

// DefaultTailLimit is used when a logs request has no limit parameter.
const DefaultTailLimit = 100

// Mount registers the read API on r:
//
//	GET /telemetry/snapshot           current aggregate as JSON
//	GET /telemetry/health             health report, 200 or 503
//	GET /telemetry/logs/{stream}      most recent records, ?limit=N
//	GET /telemetry/streams            per-stream drop counts and breaker state
func (e *Engine) Mount(r chi.Router) {
	r.Route("/telemetry", func(r chi.Router) {
		r.Get("/snapshot", e.SnapshotHandler())
		r.Get("/health", e.HealthHandler())
		r.Get("/logs/{stream}", e.TailHandler())
		r.Get("/streams", e.StreamsHandler())
	})
}

// StreamsHandler serves Streams as JSON.
func (e *Engine) StreamsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Streams())
	}
}

// SnapshotHandler serves Snapshot as JSON.
func (e *Engine) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Snapshot())
	}
}

// HealthHandler serves the health report with its status's HTTP code.
func (e *Engine) HealthHandler() http.HandlerFunc {
	return health.ReportHandler(e.Health)
}

// TailHandler serves the most recent records of the {stream} URL parameter.
func (e *Engine) TailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := eventlog.Stream(chi.URLParam(r, "stream"))

		limit := DefaultTailLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		records, err := e.Tail(stream, limit)
		switch {
		case errors.Is(err, eventlog.ErrUnknownStream):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case err != nil:
			e.log.Error(r.Context(), "tail failed", observe.F("stream", string(stream)), observe.F("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read log stream"})
		default:
			writeJSON(w, http.StatusOK, records)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
