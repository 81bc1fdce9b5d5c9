package resilience

import "errors"

// ErrCircuitOpen is returned by Allow while the circuit is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")
