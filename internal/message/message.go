// Package message defines the JSON shapes exchanged over the HTTP and
// WebSocket API.
package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/nadzzz/voicestudio/internal/orchestrator"
	"github.com/nadzzz/voicestudio/internal/settings"
)

// GenerateRequest asks for a generation run. Either Project or Text is set;
// Project wins when both are.
type GenerateRequest struct {
	// Project is a project document in the import format.
	Project json.RawMessage `json:"project,omitempty" swaggertype:"object"`

	// Text is a single utterance, spoken by the narrator.
	Text string `json:"text,omitempty"`

	// Voice overrides the narrator voice for Text.
	Voice string `json:"voice,omitempty"`

	// Settings overrides the server's default voice settings. Omitted
	// fields keep the server defaults.
	Settings json.RawMessage `json:"settings,omitempty" swaggertype:"object"`
}

// ResolveSettings applies the request's settings overrides on top of base.
func (r *GenerateRequest) ResolveSettings(base settings.Settings) (settings.Settings, error) {
	if len(r.Settings) == 0 {
		return base, nil
	}
	s := base
	if err := json.Unmarshal(r.Settings, &s); err != nil {
		return base, fmt.Errorf("invalid settings: %w", err)
	}
	return s.Clamped(), nil
}

// SpeakRequest is the body of POST /v1/speak.
type SpeakRequest struct {
	Text     string          `json:"text"`
	Voice    string          `json:"voice,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty" swaggertype:"object"`
}

// Generate converts the request to a GenerateRequest.
func (r SpeakRequest) Generate() GenerateRequest {
	return GenerateRequest{Text: r.Text, Voice: r.Voice, Settings: r.Settings}
}

// Line is one synthesized dialogue line.
type Line struct {
	RunID    string `json:"run_id,omitempty"`
	Segment  int    `json:"segment"`
	Index    int    `json:"index"`
	Sequence int    `json:"sequence"`
	Speaker  string `json:"speaker"`
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Emotion  string `json:"emotion,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`

	// Audio is the clip as base64. Empty for skipped lines.
	Audio       string `json:"audio,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// FromLine converts an orchestrator result.
func FromLine(l orchestrator.Line) Line {
	out := Line{
		RunID:       l.RunID,
		Segment:     l.Segment,
		Index:       l.Index,
		Sequence:    l.Sequence,
		Speaker:     l.SpeakerID,
		Text:        l.Text,
		Voice:       l.Request.Voice,
		Emotion:     l.Request.Emotion,
		Backend:     l.Backend,
		Skipped:     l.Skipped,
		ContentType: l.ContentType,
	}
	if len(l.Audio) > 0 {
		out.Audio = base64.StdEncoding.EncodeToString(l.Audio)
	}
	return out
}

// GenerateResponse is the result of POST /v1/generate.
type GenerateResponse struct {
	RunID string `json:"run_id"`
	Lines []Line `json:"lines"`
}

// Error is the body of every non-2xx JSON response.
type Error struct {
	Error string `json:"error"`
}

// Event types sent on the generation WebSocket.
const (
	EventLine       = "line"
	EventDone       = "done"
	EventError      = "error"
	EventSuperseded = "superseded"
	EventPong       = "pong"
)

// Client message types accepted on the generation WebSocket.
const (
	RequestGenerate = "generate"
	RequestCancel   = "cancel"
	RequestPing     = "ping"
)

// SocketRequest is a client message on the generation WebSocket. An empty
// Type means "generate".
type SocketRequest struct {
	Type string `json:"type,omitempty"`
	GenerateRequest
}

// Event is a server message on the generation WebSocket.
type Event struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
	Line  *Line  `json:"line,omitempty"`
	Lines int    `json:"lines,omitempty"` // on done: number of lines emitted
	Error string `json:"error,omitempty"`
}
