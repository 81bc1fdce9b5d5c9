package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/telemetrykit/metrics"
)

var lowMemory = metrics.MemoryReading{HeapUsed: 10, HeapTotal: 100}

func snapshot(total, errs, slow uint64) metrics.Snapshot {
	return metrics.Snapshot{
		TotalRequests:    total,
		ErrorCount:       errs,
		SlowRequestCount: slow,
		TakenAt:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Uptime:           time.Hour,
	}
}

func TestEvaluate_ErrorRate(t *testing.T) {
	tests := []struct {
		name   string
		errors uint64
		state  State
		status Status
	}{
		{"no errors", 0, StatePass, StatusHealthy},
		{"exactly 5%", 50, StatePass, StatusHealthy},
		{"6% warns", 60, StateWarn, StatusDegraded},
		{"exactly 10%", 100, StateWarn, StatusDegraded},
		{"11% fails", 110, StateFail, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Evaluate(snapshot(1000, tt.errors, 0), lowMemory, DefaultThresholds())
			c, ok := rep.Check(CheckErrorRate)
			if !ok {
				t.Fatal("error_rate check missing")
			}
			if c.State != tt.state {
				t.Errorf("State = %q, want %q", c.State, tt.state)
			}
			if rep.Status != tt.status {
				t.Errorf("Status = %v, want %v", rep.Status, tt.status)
			}
		})
	}
}

func TestEvaluate_ReportsObservedAndThreshold(t *testing.T) {
	rep := Evaluate(snapshot(1000, 110, 150), metrics.MemoryReading{HeapUsed: 85, HeapTotal: 100}, DefaultThresholds())

	want := map[string]struct {
		state     State
		observed  float64
		threshold float64
	}{
		CheckErrorRate:    {StateFail, 11, 10},
		CheckMemory:       {StateWarn, 85, 80},
		CheckSlowRequests: {StateWarn, 15, 10},
	}
	if len(rep.Checks) != 3 {
		t.Fatalf("Checks = %d, want 3", len(rep.Checks))
	}
	for name, w := range want {
		c, _ := rep.Check(name)
		if c.State != w.state || c.Observed != w.observed || c.Threshold != w.threshold {
			t.Errorf("%s = %+v, want state=%s observed=%v threshold=%v", name, c, w.state, w.observed, w.threshold)
		}
	}
	if rep.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", rep.Status)
	}
	if rep.TotalRequests != 1000 || rep.Uptime != time.Hour {
		t.Errorf("report metadata = %d, %v", rep.TotalRequests, rep.Uptime)
	}
}

func TestEvaluate_ZeroRequests(t *testing.T) {
	rep := Evaluate(metrics.Snapshot{}, lowMemory, DefaultThresholds())
	if rep.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", rep.Status)
	}
	for _, c := range rep.Checks {
		if c.Name != CheckMemory && c.Observed != 0 {
			t.Errorf("%s observed = %v, want 0", c.Name, c.Observed)
		}
	}
	if rep.Timestamp.IsZero() {
		t.Error("Timestamp should default to now")
	}
}

func TestEvaluate_MemoryAlone(t *testing.T) {
	tests := []struct {
		used   uint64
		status Status
	}{
		{80, StatusHealthy},
		{81, StatusDegraded},
		{90, StatusDegraded},
		{91, StatusUnhealthy},
	}
	for _, tt := range tests {
		rep := Evaluate(snapshot(10, 0, 0), metrics.MemoryReading{HeapUsed: tt.used, HeapTotal: 100}, DefaultThresholds())
		if rep.Status != tt.status {
			t.Errorf("heap %d%%: Status = %v, want %v", tt.used, rep.Status, tt.status)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}

	bad := DefaultThresholds()
	bad.SlowRequests = Threshold{Warn: 30, Fail: 20}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidThresholds) {
		t.Fatalf("Validate() = %v, want ErrInvalidThresholds", err)
	}
	if !strings.Contains(err.Error(), CheckSlowRequests) {
		t.Errorf("error should name the check: %v", err)
	}

	bad = DefaultThresholds()
	bad.Memory = Threshold{Warn: 80, Fail: 120}
	if bad.Validate() == nil {
		t.Error("fail above 100 should be rejected")
	}
}

func TestStatus_HTTPCode(t *testing.T) {
	tests := []struct {
		status Status
		code   int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := tt.status.HTTPCode(); got != tt.code {
			t.Errorf("%v.HTTPCode() = %d, want %d", tt.status, got, tt.code)
		}
	}
}

func TestReport_Result(t *testing.T) {
	rep := Evaluate(snapshot(100, 11, 25), lowMemory, DefaultThresholds())
	res := rep.Result()

	if res.Status != StatusUnhealthy || !errors.Is(res.Error, ErrCheckFailed) {
		t.Errorf("Result = %+v", res)
	}
	if !strings.Contains(res.Message, "error_rate") || !strings.Contains(res.Message, "+1 more") {
		t.Errorf("Message = %q", res.Message)
	}
	if _, ok := res.Details[CheckSlowRequests]; !ok {
		t.Errorf("Details missing %s: %v", CheckSlowRequests, res.Details)
	}
}

func TestReport_JSON(t *testing.T) {
	rep := Evaluate(snapshot(100, 6, 0), lowMemory, DefaultThresholds())
	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"status":"degraded"`) {
		t.Errorf("status not encoded as text: %s", data)
	}
}
