// Package eventlog is the append-only event log sink.
//
// Events are written as one JSON object per line to one file per stream
// (errors.log, access.log, performance.log). Appends to a stream are
// serialized by that stream's own lock, so writers on different streams
// never wait on each other. Write failures are reported to a fallback
// logger and never panic; callers on the request path are expected to
// discard the returned error.
//
// Tail reads a stream back most-recent-first. A line that fails to parse
// is returned as a synthetic error record in its place rather than
// aborting the read.
package eventlog
