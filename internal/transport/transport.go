// Package transport defines the contract for the network front ends and the
// generation service they share.
//
// Each transport (HTTP/WebSocket, gRPC) implements Transport. The service
// is transport-agnostic: it turns a request into a studio session and an
// orchestrator run.
package transport

import (
	"bytes"
	"context"
	"errors"

	"github.com/nadzzz/voicestudio/internal/emotion"
	"github.com/nadzzz/voicestudio/internal/message"
	"github.com/nadzzz/voicestudio/internal/orchestrator"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/remote"
	"github.com/nadzzz/voicestudio/internal/resolve"
	"github.com/nadzzz/voicestudio/internal/settings"
	"github.com/nadzzz/voicestudio/internal/studio"
	"github.com/nadzzz/voicestudio/internal/tts"
	"github.com/nadzzz/voicestudio/internal/tts/selector"
	"github.com/nadzzz/voicestudio/internal/voice"
)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g. "grpc", "http").
	Name() string

	// Listen serves until the context is cancelled.
	Listen(ctx context.Context) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

// Backends reports backend availability. *selector.Selector implements it.
type Backends interface {
	Snapshot() []selector.Status
	Serviceable() bool
}

// PresetSource supplies the current emotion library.
// *emotion.Reconciler implements it.
type PresetSource interface {
	Library() emotion.Library
}

// Service is the generation service shared by the transports.
type Service struct {
	Synthesizer orchestrator.Synthesizer
	Backends    Backends
	Voices      *voice.Engine
	Settings    settings.Settings
	Presets     PresetSource // optional
	Concurrency int
}

// Orchestrator returns a new orchestrator. Runs on the same orchestrator
// supersede each other, so callers keep one per client session.
func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(s.Synthesizer, orchestrator.Options{Concurrency: s.Concurrency})
}

func (s *Service) presets() resolve.Presets {
	if s.Presets == nil {
		return nil
	}
	return s.Presets.Library()
}

// Generate runs req on o and passes each line to emit in order.
func (s *Service) Generate(ctx context.Context, o *orchestrator.Orchestrator, req message.GenerateRequest, emit orchestrator.EmitFunc) error {
	st, err := req.ResolveSettings(s.Settings)
	if err != nil {
		return &project.ValidationError{Field: "settings", Reason: err.Error()}
	}

	if len(req.Project) == 0 {
		return o.Generate(ctx, project.Single(req.Text, req.Voice), st, s.presets(), emit)
	}

	sess := studio.New(s.Voices, st)
	if err := sess.Import(bytes.NewReader(req.Project), project.FormatJSON); err != nil {
		return err
	}
	return sess.Generate(ctx, o, s.presets(), emit)
}

// Speak synthesizes a single text.
func (s *Service) Speak(ctx context.Context, req message.SpeakRequest) (orchestrator.Line, error) {
	var line orchestrator.Line
	err := s.Generate(ctx, s.Orchestrator(), req.Generate(), func(l orchestrator.Line) error {
		line = l
		return nil
	})
	return line, err
}

// Kind classifies an error for transports that map it to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnavailable
	KindUpstream
	KindCancelled
)

// Classify maps a generation error to a Kind.
func Classify(err error) Kind {
	switch {
	case project.IsValidation(err):
		return KindInvalid
	case errors.Is(err, tts.ErrNoBackend):
		return KindUnavailable
	case remote.IsServiceError(err):
		return KindUpstream
	case errors.Is(err, orchestrator.ErrSuperseded), errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}
