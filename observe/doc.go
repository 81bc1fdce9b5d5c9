// Package observe provides the ambient observability layer for telemetrykit.
//
// It carries a JSON structured logger (also used as the fallback console
// channel when log files cannot be written), OpenTelemetry instruments that
// mirror the in-process request aggregates, and span helpers for the
// background eviction and retention jobs. Exporter setup lives in the
// exporters subpackage.
package observe
