// Package metrics keeps live per-endpoint request statistics for an HTTP
// service and bounds how large that table may grow.
//
// An Aggregator holds the process-lifetime counters: total requests, errors,
// slow requests and a table of EndpointStats keyed by (method, route). All
// mutation happens under a single mutex; readers receive a Snapshot, a deep
// copy with derived rates computed at the time it was taken.
//
// A Controller is sampled after every Nth record. When heap utilization
// crosses the memory trigger and the table is above its high-water mark, or
// when the table exceeds its hard capacity, it keeps only the most recently
// accessed endpoints (the low-water mark) and drops the rest in one batch.
// Eviction prunes the breakdown only; the process-lifetime totals are kept.
//
// # Basic Usage
//
//	agg := metrics.NewAggregator(metrics.Config{SlowThreshold: 3 * time.Second})
//	ctrl := metrics.NewController(agg, metrics.ControllerConfig{})
//
//	agg.Record(ctx, metrics.AccessSample{Method: "GET", Route: "/users/{id}", StatusCode: 200, ResponseTimeMs: 42})
//	ctrl.Observe(ctx)
//
//	snap := agg.Snapshot()
//	fmt.Println(snap.ErrorRatePercent)
package metrics
