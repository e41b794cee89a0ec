package stream

import (
	"errors"
	"fmt"
)

// ErrStreamFailure matches every error returned by Ingest for a failed stream
var ErrStreamFailure = errors.New("stream failure")

var (
	// ErrNoBody is reported when a response carries no readable body
	ErrNoBody = errors.New("response has no readable body")

	// ErrReadTimeout is reported when a single chunk read exceeds the read timeout
	ErrReadTimeout = errors.New("timed out waiting for stream data")
)

// StreamError describes a failed stream. Partial holds the content that
// had already been applied when the failure happened.
type StreamError struct {
	Op      string // open, read or decode
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream %s failed after %d bytes of content: %v", e.Op, len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream %s failed: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Is reports StreamError values as ErrStreamFailure
func (e *StreamError) Is(target error) bool {
	return target == ErrStreamFailure
}

// NewOpenError wraps a failure to obtain a stream body
func NewOpenError(err error) error {
	return &StreamError{Op: "open", Err: err}
}
