// Package selector orders synthesis backends and falls back between them.
//
// Each backend moves through UNPROBED -> PROBING -> AVAILABLE | UNAVAILABLE.
// Probing happens lazily on the first request that reaches the backend and
// the outcome is cached for the life of the process. A backend that probed
// AVAILABLE but fails at call time with an InvocationError is demoted to
// UNAVAILABLE and the request is retried once on the next candidate. Any
// other error (a remote service failure) is returned to the caller as is.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// State is the availability state of one backend.
type State int

const (
	StateUnprobed State = iota
	StateProbing
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUnprobed:
		return "UNPROBED"
	case StateProbing:
		return "PROBING"
	case StateAvailable:
		return "AVAILABLE"
	case StateUnavailable:
		return "UNAVAILABLE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var validTransitions = map[State][]State{
	StateUnprobed:  {StateProbing},
	StateProbing:   {StateAvailable, StateUnavailable, StateUnprobed},
	StateAvailable: {StateUnavailable},
}

// Status is a point-in-time view of one backend.
type Status struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type candidate struct {
	backend tts.Backend
	state   State
	reason  error
	probed  chan struct{} // closed when the in-flight probe finishes
}

// Selector holds the ordered candidate list. It is safe for concurrent use.
type Selector struct {
	mu         sync.Mutex
	candidates []*candidate
}

// New creates a selector. Backends are tried in the given order.
func New(backends ...tts.Backend) *Selector {
	s := &Selector{}
	for _, b := range backends {
		s.candidates = append(s.candidates, &candidate{backend: b})
	}
	return s
}

// Synthesize runs req on the first available backend, falling back once on
// an invocation failure.
func (s *Selector) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	var prev error
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.pick(ctx)
		if err != nil {
			if prev != nil {
				return nil, fmt.Errorf("%w (after: %v)", err, prev)
			}
			return nil, err
		}

		res, err := c.backend.Synthesize(ctx, req)
		if err == nil {
			return res, nil
		}
		if !tts.IsInvocationFailure(err) {
			return nil, err
		}
		s.demote(c, err)
		prev = err
	}
	return nil, fmt.Errorf("%w: fallback attempt failed: %v", tts.ErrNoBackend, prev)
}

// pick returns the first candidate that is or becomes AVAILABLE.
func (s *Selector) pick(ctx context.Context) (*candidate, error) {
	for _, c := range s.candidates {
		ok, err := s.ensureProbed(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}
	return nil, tts.ErrNoBackend
}

// ensureProbed probes c if nobody has, or waits for the probe in flight.
// It reports whether c is AVAILABLE.
func (s *Selector) ensureProbed(ctx context.Context, c *candidate) (bool, error) {
	for {
		s.mu.Lock()
		switch c.state {
		case StateAvailable:
			s.mu.Unlock()
			return true, nil
		case StateUnavailable:
			s.mu.Unlock()
			return false, nil
		case StateProbing:
			wait := c.probed
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}

		s.transition(c, StateProbing, nil)
		c.probed = make(chan struct{})
		done := c.probed
		s.mu.Unlock()

		err := c.backend.Probe(ctx)

		s.mu.Lock()
		switch {
		case err == nil:
			s.transition(c, StateAvailable, nil)
		case ctx.Err() != nil:
			// The caller went away; leave the backend for the next request.
			s.transition(c, StateUnprobed, nil)
		default:
			s.transition(c, StateUnavailable, err)
		}
		close(done)
		available := c.state == StateAvailable
		s.mu.Unlock()

		if err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
		return available, nil
	}
}

func (s *Selector) demote(c *candidate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(c, StateUnavailable, err)
}

// transition applies a state change if it is valid. Callers hold s.mu.
func (s *Selector) transition(c *candidate, to State, reason error) bool {
	if !slices.Contains(validTransitions[c.state], to) {
		return false
	}
	from := c.state
	c.state = to
	c.reason = reason

	switch to {
	case StateAvailable:
		slog.Info("tts backend available", "backend", c.backend.Name())
	case StateUnavailable:
		if from == StateAvailable {
			slog.Warn("tts backend demoted", "backend", c.backend.Name(), "error", reason)
		} else {
			slog.Info("tts backend unavailable", "backend", c.backend.Name(), "reason", reason)
		}
	}
	return true
}

// Snapshot returns the state of every backend in candidate order.
func (s *Selector) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.candidates))
	for _, c := range s.candidates {
		st := Status{Name: c.backend.Name(), State: c.state.String()}
		if c.reason != nil {
			st.Reason = c.reason.Error()
		}
		out = append(out, st)
	}
	return out
}

// Serviceable reports whether at least one backend is not UNAVAILABLE.
func (s *Selector) Serviceable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.candidates {
		if c.state != StateUnavailable {
			return true
		}
	}
	return false
}

// Close closes every backend.
func (s *Selector) Close() error {
	var err error
	for _, c := range s.candidates {
		if cerr := c.backend.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing %s: %w", c.backend.Name(), cerr))
		}
	}
	return err
}
