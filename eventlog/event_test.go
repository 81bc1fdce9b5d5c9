package eventlog

import (
	"errors"
	"testing"
	"time"
)

func TestAccessEvent_Normalize(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	neg := -5 * time.Millisecond

	tests := []struct {
		name   string
		in     AccessEvent
		method string
		route  string
		ms     int64
	}{
		{"all missing", AccessEvent{}, DefaultMethod, DefaultRoute, 0},
		{"negative response time", AccessEvent{Method: "GET", Route: "/x", ResponseTime: &neg}, "GET", "/x", 0},
		{"case preserved", AccessEvent{Method: "get", Route: "/X"}, "get", "/X", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize(now)
			if got.Method != tt.method || got.Route != tt.route || got.ResponseTimeMs() != tt.ms {
				t.Errorf("Normalize() = %s %s %dms", got.Method, got.Route, got.ResponseTimeMs())
			}
			if !got.Timestamp.Equal(now) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
			}
		})
	}
}

func TestAccessEvent_RecordLevel(t *testing.T) {
	tests := []struct {
		status int
		level  Level
		isErr  bool
	}{
		{200, LevelInfo, false},
		{404, LevelWarning, true},
		{429, LevelWarning, true},
		{503, LevelError, true},
	}
	for _, tt := range tests {
		ev := AccessEvent{StatusCode: tt.status}
		if got := ev.Record().Level; got != tt.level {
			t.Errorf("status %d: level = %q, want %q", tt.status, got, tt.level)
		}
		if ev.IsError() != tt.isErr {
			t.Errorf("status %d: IsError = %v, want %v", tt.status, ev.IsError(), tt.isErr)
		}
	}
}

func TestErrorEvent_MessageDefaults(t *testing.T) {
	if got := (ErrorEvent{}).Record().Message; got != DefaultErrorMessage {
		t.Errorf("empty message = %q, want %q", got, DefaultErrorMessage)
	}
	if got := (ErrorEvent{Err: errors.New("boom")}).Record().Message; got != "boom" {
		t.Errorf("message from Err = %q, want boom", got)
	}
	if got := (ErrorEvent{Message: "explicit", Err: errors.New("boom")}).Record().Message; got != "explicit" {
		t.Errorf("explicit message = %q, want explicit", got)
	}
}

func TestNoticeEvent_LevelCoercion(t *testing.T) {
	tests := []struct {
		in   Level
		want Level
	}{
		{"", LevelInfo},
		{LevelInfo, LevelInfo},
		{LevelWarning, LevelWarning},
		{"warn", LevelWarning},
		{LevelError, LevelInfo},
	}
	for _, tt := range tests {
		if got := (NoticeEvent{Level: tt.in}).Record().Level; got != tt.want {
			t.Errorf("Level %q -> %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStream_FileName(t *testing.T) {
	want := map[Stream]string{
		StreamError:       "errors.log",
		StreamAccess:      "access.log",
		StreamPerformance: "performance.log",
	}
	for s, name := range want {
		if s.FileName() != name {
			t.Errorf("%s.FileName() = %q, want %q", s, s.FileName(), name)
		}
	}
	if Stream("audit").Valid() {
		t.Error("unknown stream reported valid")
	}
}

func TestCaptureSystem(t *testing.T) {
	snap := CaptureSystem(time.Now().Add(-time.Minute))
	if snap.PID == 0 || snap.Goroutines == 0 || snap.HeapSysBytes == 0 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.UptimeSeconds < 59 {
		t.Errorf("UptimeSeconds = %v, want >= 59", snap.UptimeSeconds)
	}
}
