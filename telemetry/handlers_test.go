package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/telemetrykit/eventlog"
	"github.com/jonwraymond/telemetrykit/health"
	"github.com/jonwraymond/telemetrykit/metrics"
)

func mountedEngine(t *testing.T) (*Engine, http.Handler) {
	t.Helper()
	e, _ := newTestEngine(t, testConfig(t))
	r := chi.NewRouter()
	e.Mount(r)
	return e, r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSnapshotHandler(t *testing.T) {
	e, h := mountedEngine(t)
	e.RecordAccess(context.Background(), eventlog.AccessEvent{Method: "GET", Route: "/a", StatusCode: 500})

	rec := get(t, h, "/telemetry/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TotalRequests != 1 || snap.ErrorRatePercent != 100 {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, ok := snap.Endpoints[metrics.EndpointKey{Method: "GET", Route: "/a"}]; !ok {
		t.Errorf("endpoints = %+v", snap.Endpoints)
	}
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		_, h := mountedEngine(t)
		rec := get(t, h, "/telemetry/health")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["status"] != "healthy" {
			t.Errorf("status field = %v", body["status"])
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		e, h := mountedEngine(t)
		for i := 0; i < 10; i++ {
			e.RecordAccess(context.Background(), eventlog.AccessEvent{Method: "GET", Route: "/", StatusCode: 500})
		}
		rec := get(t, h, "/telemetry/health")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
		if e.Health(context.Background()).Status != health.StatusUnhealthy {
			t.Error("engine should report unhealthy")
		}
	})
}

func TestTailHandler(t *testing.T) {
	e, h := mountedEngine(t)
	ctx := context.Background()
	for _, route := range []string{"/1", "/2", "/3"} {
		e.RecordAccess(ctx, eventlog.AccessEvent{Method: "GET", Route: route})
	}

	tests := []struct {
		name   string
		target string
		code   int
		count  int
	}{
		{"default limit", "/telemetry/logs/access", http.StatusOK, 3},
		{"limited", "/telemetry/logs/access?limit=2", http.StatusOK, 2},
		{"zero means all", "/telemetry/logs/access?limit=0", http.StatusOK, 3},
		{"empty stream", "/telemetry/logs/performance", http.StatusOK, 0},
		{"unknown stream", "/telemetry/logs/debug", http.StatusNotFound, -1},
		{"bad limit", "/telemetry/logs/access?limit=x", http.StatusBadRequest, -1},
		{"negative limit", "/telemetry/logs/access?limit=-1", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.count < 0 {
				return
			}
			var recs []eventlog.Record
			if err := json.NewDecoder(rec.Body).Decode(&recs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(recs) != tt.count {
				t.Errorf("records = %d, want %d", len(recs), tt.count)
			}
			if tt.count > 0 && recs[0].Route != "/3" {
				t.Errorf("first record route = %q, want most recent", recs[0].Route)
			}
		})
	}
}

func TestStreamsHandler(t *testing.T) {
	e, h := mountedEngine(t)
	e.RecordNotice(context.Background(), eventlog.NoticeEvent{Message: "hello"})

	rec := get(t, h, "/telemetry/streams")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status []eventlog.StreamStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(status) != len(eventlog.Streams) {
		t.Fatalf("streams = %d, want %d", len(status), len(eventlog.Streams))
	}
	for i, st := range status {
		if st.Stream != eventlog.Streams[i] || st.Breaker != "closed" || st.Dropped != 0 {
			t.Errorf("status[%d] = %+v", i, st)
		}
	}
}
