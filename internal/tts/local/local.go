// Package local implements the on-device synthesis backends (accelerated and
// CPU). Both wrap a Runtime that is loaded lazily, at most once, and shared
// by every request for the rest of the process.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// Names of the local backends.
const (
	Accelerated = "accelerated"
	CPU         = "cpu"
)

// Runtime is a loaded synthesis engine.
type Runtime interface {
	Synthesize(ctx context.Context, req tts.Request) ([]byte, error)
	Close() error
}

// Loader loads and warms a runtime. It is expensive and called at most once.
type Loader func(ctx context.Context) (Runtime, error)

// CapabilityCheck inspects the execution environment without loading
// anything. A non-nil error means the backend cannot run here.
type CapabilityCheck func() error

// Backend is an on-device synthesis backend.
type Backend struct {
	name  string
	check CapabilityCheck
	load  Loader

	mu      sync.Mutex
	runtime Runtime
}

// New creates a local backend. check may be nil when the backend has no
// environment prerequisite.
func New(name string, check CapabilityCheck, load Loader) *Backend {
	return &Backend{name: name, check: check, load: load}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return b.name }

// Probe runs the capability check and then loads the runtime once. A loaded
// runtime is never replaced.
func (b *Backend) Probe(ctx context.Context) error {
	if b.check != nil {
		if err := b.check(); err != nil {
			return fmt.Errorf("%s: %w: %v", b.name, tts.ErrCapabilityUnavailable, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runtime != nil {
		return nil
	}
	rt, err := b.load(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: loading runtime: %v", b.name, tts.ErrCapabilityUnavailable, err)
	}
	b.runtime = rt
	slog.Info("local tts runtime loaded", "backend", b.name)
	return nil
}

// Synthesize runs the request on the loaded runtime. Every failure is an
// InvocationError so the selector demotes this backend.
func (b *Backend) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	b.mu.Lock()
	rt := b.runtime
	b.mu.Unlock()
	if rt == nil {
		return nil, &tts.InvocationError{Backend: b.name, Err: errors.New("runtime not loaded")}
	}

	audio, err := rt.Synthesize(ctx, req)
	if err != nil {
		return nil, &tts.InvocationError{Backend: b.name, Err: err}
	}
	return &tts.Result{Audio: audio, ContentType: "audio/wav", Backend: b.name}, nil
}

// Close releases the runtime, if loaded.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runtime == nil {
		return nil
	}
	return b.runtime.Close()
}

var _ tts.Backend = (*Backend)(nil)
