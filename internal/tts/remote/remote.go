// Package remote is the network synthesis backend. It is the last candidate
// and its failures are service errors, never capability fallbacks.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// Name is the backend identifier.
const Name = "remote"

// Speaker is the part of the remote service client this backend uses.
type Speaker interface {
	Speech(ctx context.Context, req tts.Request) ([]byte, string, error)
	BaseURL() string
}

// Backend synthesizes through the remote service.
type Backend struct {
	client Speaker
}

// New creates a remote backend.
func New(client Speaker) *Backend {
	return &Backend{client: client}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return Name }

// Probe reports the backend available whenever a service URL is configured.
// It makes no network call; reachability surfaces on the first request.
func (b *Backend) Probe(context.Context) error {
	if b.client == nil || b.client.BaseURL() == "" {
		return fmt.Errorf("%s: %w: no service URL configured", Name, tts.ErrCapabilityUnavailable)
	}
	return nil
}

// Synthesize forwards the request. Errors are returned unchanged so that the
// selector surfaces them instead of falling back.
func (b *Backend) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if b.client == nil {
		return nil, errors.New("remote backend has no client")
	}
	audio, ct, err := b.client.Speech(ctx, req)
	if err != nil {
		return nil, err
	}
	return &tts.Result{Audio: audio, ContentType: ct, Backend: Name}, nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

var _ tts.Backend = (*Backend)(nil)
