// Package health derives a healthy / degraded / unhealthy verdict from the
// live request aggregate and exposes it to probes.
//
// # Evaluating a Snapshot
//
// Evaluate is a pure function of a metrics.Snapshot, a heap reading and a set
// of thresholds. It runs three independent checks and reports the worst:
//
//	| check          | warn  | fail  |
//	|----------------|-------|-------|
//	| error_rate     | > 5%  | > 10% |
//	| memory         | > 80% | > 90% |
//	| slow_requests  | > 10% | > 20% |
//
// Comparisons are strict: a value exactly at a threshold passes. A snapshot
// with no requests has error and slow rates of 0.
//
//	report := health.Evaluate(agg.Snapshot(), metrics.RuntimeMemory(0)(), health.DefaultThresholds())
//	w.WriteHeader(report.Status.HTTPCode())
//
// # Checkers and Aggregation
//
// A Checker is any component that can report its health. Aggregator runs a
// set of checkers concurrently under a timeout and combines them into one
// status, worst wins. NewReportChecker adapts a Report source, such as the
// telemetry engine, into a Checker.
//
//	agg := health.NewAggregator()
//	agg.Register("telemetry", engine.Checker())
//	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//
// # HTTP Endpoints
//
//	r := chi.NewRouter()
//	health.RegisterHandlers(r, agg)   // /healthz, /readyz, /health
//
// Status maps to HTTP as healthy 200, degraded 200, unhealthy 503.
package health
