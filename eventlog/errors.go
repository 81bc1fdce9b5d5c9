package eventlog

import (
	"errors"
	"fmt"
)

var (
	// ErrWrite indicates a record could not be appended to its stream.
	ErrWrite = errors.New("eventlog: write failed")

	// ErrRotate indicates a stream could not be rotated.
	ErrRotate = errors.New("eventlog: rotate failed")

	// ErrUnknownStream indicates a stream name outside error|access|performance.
	ErrUnknownStream = errors.New("eventlog: unknown stream")

	// ErrClosed indicates the sink has been closed.
	ErrClosed = errors.New("eventlog: sink closed")

	// ErrSuspended indicates writes to a stream are paused after repeated failures.
	ErrSuspended = errors.New("eventlog: stream suspended")
)

// ParseError describes a log line that could not be decoded on read-back.
type ParseError struct {
	Stream Stream
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("eventlog: %s line %d: %v", e.Stream, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
