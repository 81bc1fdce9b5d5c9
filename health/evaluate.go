package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/telemetrykit/metrics"
)

// Check names reported by Evaluate.
const (
	CheckErrorRate    = "error_rate"
	CheckMemory       = "memory"
	CheckSlowRequests = "slow_requests"
)

// State is the classification of a single check.
type State string

const (
	StatePass State = "pass"
	StateWarn State = "warn"
	StateFail State = "fail"
)

// Status maps pass, warn and fail to healthy, degraded and unhealthy.
func (s State) Status() Status {
	switch s {
	case StateFail:
		return StatusUnhealthy
	case StateWarn:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Threshold is a warn/fail pair in percent. A value strictly greater than
// Warn warns; strictly greater than Fail fails.
type Threshold struct {
	Warn float64 `json:"warn" koanf:"warn"`
	Fail float64 `json:"fail" koanf:"fail"`
}

func (t Threshold) validate(name string) error {
	if t.Warn < 0 || t.Fail > 100 || t.Warn > t.Fail {
		return fmt.Errorf("%w: %s warn=%v fail=%v", ErrInvalidThresholds, name, t.Warn, t.Fail)
	}
	return nil
}

// Thresholds configures the three checks.
type Thresholds struct {
	ErrorRate    Threshold `json:"error_rate" koanf:"error_rate"`
	Memory       Threshold `json:"memory" koanf:"memory"`
	SlowRequests Threshold `json:"slow_requests" koanf:"slow_requests"`
}

// DefaultThresholds returns 5/10% error rate, 80/90% heap and 10/20% slow
// requests.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:    Threshold{Warn: 5, Fail: 10},
		Memory:       Threshold{Warn: 80, Fail: 90},
		SlowRequests: Threshold{Warn: 10, Fail: 20},
	}
}

// Validate checks that every pair is within 0..100 and warn <= fail.
func (t Thresholds) Validate() error {
	if err := t.ErrorRate.validate(CheckErrorRate); err != nil {
		return err
	}
	if err := t.Memory.validate(CheckMemory); err != nil {
		return err
	}
	return t.SlowRequests.validate(CheckSlowRequests)
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string  `json:"name"`
	State    State   `json:"state"`
	Observed float64 `json:"observed"`
	// Threshold is the boundary that decided State: Fail when failing,
	// Warn otherwise.
	Threshold     float64 `json:"threshold"`
	WarnThreshold float64 `json:"warn_threshold"`
	FailThreshold float64 `json:"fail_threshold"`
	Message       string  `json:"message"`
}

// Report is the health verdict for one snapshot.
type Report struct {
	Status        Status                `json:"status"`
	Checks        []CheckResult         `json:"checks"`
	Timestamp     time.Time             `json:"timestamp"`
	Uptime        time.Duration         `json:"uptime_ns"`
	TotalRequests uint64                `json:"total_requests"`
	Memory        metrics.MemoryReading `json:"memory"`
}

// Check returns the named check and whether it exists.
func (r Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Evaluate classifies snap and mem against th. It does not modify anything.
func Evaluate(snap metrics.Snapshot, mem metrics.MemoryReading, th Thresholds) Report {
	checks := []CheckResult{
		classify(CheckErrorRate, metrics.Percent(snap.ErrorCount, snap.TotalRequests), th.ErrorRate),
		classify(CheckMemory, mem.Percent(), th.Memory),
		classify(CheckSlowRequests, metrics.Percent(snap.SlowRequestCount, snap.TotalRequests), th.SlowRequests),
	}

	status := StatusHealthy
	for _, c := range checks {
		status = Worst(status, c.State.Status())
	}

	ts := snap.TakenAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Report{
		Status:        status,
		Checks:        checks,
		Timestamp:     ts,
		Uptime:        snap.Uptime,
		TotalRequests: snap.TotalRequests,
		Memory:        mem,
	}
}

func classify(name string, observed float64, th Threshold) CheckResult {
	res := CheckResult{
		Name:          name,
		State:         StatePass,
		Observed:      observed,
		Threshold:     th.Warn,
		WarnThreshold: th.Warn,
		FailThreshold: th.Fail,
	}
	switch {
	case observed > th.Fail:
		res.State = StateFail
		res.Threshold = th.Fail
		res.Message = fmt.Sprintf("%s %.2f%% exceeds %.2f%%", name, observed, th.Fail)
	case observed > th.Warn:
		res.State = StateWarn
		res.Message = fmt.Sprintf("%s %.2f%% exceeds %.2f%%", name, observed, th.Warn)
	default:
		res.Message = fmt.Sprintf("%s %.2f%% within %.2f%%", name, observed, th.Warn)
	}
	return res
}

// Result converts the report into a checker Result whose details hold each
// check's state and observed value.
func (r Report) Result() Result {
	details := make(map[string]any, len(r.Checks)+1)
	details["total_requests"] = r.TotalRequests
	var failing []string
	for _, c := range r.Checks {
		details[c.Name] = map[string]any{
			"state":     string(c.State),
			"observed":  c.Observed,
			"threshold": c.Threshold,
		}
		if c.State != StatePass {
			failing = append(failing, c.Message)
		}
	}

	msg := "all checks passed"
	if len(failing) > 0 {
		msg = failing[0]
		if len(failing) > 1 {
			msg = fmt.Sprintf("%s (+%d more)", msg, len(failing)-1)
		}
	}

	res := Result{Status: r.Status, Message: msg, Details: details, Timestamp: r.Timestamp}
	if r.Status == StatusUnhealthy {
		res.Error = ErrCheckFailed
	}
	return res
}

// NewReportChecker adapts a Report source into a Checker.
func NewReportChecker(name string, report func(context.Context) Report) Checker {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		return report(ctx).Result()
	})
}
