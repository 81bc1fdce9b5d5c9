// Package retention runs the two periodic maintenance jobs of the telemetry
// engine: a full reset of the request aggregate once it grows past a
// ceiling, and age/size based rotation of the event log streams.
//
// Each cycle is idempotent and independent of the previous one, so a missed
// tick (a suspended process, a slow disk) is simply caught up on the next.
package retention
