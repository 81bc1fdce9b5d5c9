// Package resilience protects the event log write path.
//
// CircuitBreaker pauses appends to a stream after consecutive failures and
// probes again after a timeout. RateLimiter is a non-blocking token bucket
// used to throttle fallback console reports.
package resilience
