package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrCapabilityUnavailable means a backend's prerequisite is absent.
	// It is never fatal on its own: the selector moves to the next candidate.
	ErrCapabilityUnavailable = errors.New("tts capability unavailable")

	// ErrNoBackend is returned when every candidate backend is exhausted.
	ErrNoBackend = errors.New("no synthesis backend available")
)

// InvocationError reports that a backend which probed AVAILABLE failed at
// call time (out of memory, unsupported op, dead runtime). The selector
// demotes the backend and retries the request once on the next candidate.
type InvocationError struct {
	Backend string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("backend %s invocation failed: %v", e.Backend, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// IsInvocationFailure reports whether err carries an InvocationError.
func IsInvocationFailure(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}
