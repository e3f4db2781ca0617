package session

import (
	"errors"
)

var (
	// ErrSessionInactive is returned for turns on a conversation that no
	// longer accepts messages.
	ErrSessionInactive = errors.New("chat session ended")

	// ErrUpstream matches every *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream failure")
)

// UpstreamError wraps any failure of the completion call. Its message is the
// upstream error text unchanged.
type UpstreamError struct {
	Operation string
	Err       error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
