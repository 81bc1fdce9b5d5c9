package metrics

import "errors"

var (
	// ErrReclaim indicates the runtime memory reclamation pass failed.
	ErrReclaim = errors.New("metrics: memory reclamation failed")
)
