// Package tts defines the backend-agnostic synthesis contract.
//
// Every synthesis backend (on-device accelerated, on-device CPU, remote
// service) implements Backend, so the orchestrator never needs to know which
// engine produced a clip. A Request is the fully-resolved unit of work for
// one line of text.
package tts

import "context"

// InnerVoiceStyle selects the inner-voice post-processing effect.
type InnerVoiceStyle string

const (
	InnerVoiceLight  InnerVoiceStyle = "light"
	InnerVoiceDeep   InnerVoiceStyle = "deep"
	InnerVoiceDreamy InnerVoiceStyle = "dreamy"
)

// Valid reports whether s is one of the known styles.
func (s InnerVoiceStyle) Valid() bool {
	switch s {
	case InnerVoiceLight, InnerVoiceDeep, InnerVoiceDreamy:
		return true
	}
	return false
}

// InnerVoice describes the post-processing applied after synthesis.
type InnerVoice struct {
	Style InnerVoiceStyle `json:"style"`

	// MixVolume blends the processed (wet) signal with the dry one, 0..1.
	MixVolume float64 `json:"mix_volume"`
}

// Request is the resolved parameter set for one clip.
type Request struct {
	// Text is the line to speak. Never empty for a request that reaches a backend.
	Text string `json:"text"`

	// Voice is the voice identity (e.g. "Alice"). Empty lets the backend choose.
	Voice string `json:"voice,omitempty"`

	// Language is the ISO-639-1 code (e.g., "en", "vi").
	Language string `json:"language,omitempty"`

	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
	Speed        float64 `json:"speed"`

	// Emotion is the preset label the parameters were resolved from, if any.
	Emotion string `json:"emotion,omitempty"`

	// InnerVoice is nil when no inner-voice processing is requested.
	InnerVoice *InnerVoice `json:"inner_voice,omitempty"`
}

// Result holds the output of one synthesis call.
type Result struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// Backend is the name of the backend that produced the audio.
	Backend string
}

// Backend is the capability interface shared by every synthesis engine.
type Backend interface {
	// Name returns the backend identifier (e.g., "accelerated", "cpu", "remote").
	Name() string

	// Probe checks whether the backend can serve requests in this process.
	// It may be expensive (loading and warming a model) and is called at most
	// once per backend by the selector. A nil error means AVAILABLE.
	Probe(ctx context.Context) error

	// Synthesize generates audio for a resolved request.
	Synthesize(ctx context.Context, req Request) (*Result, error)

	// Close releases any resources held by the backend.
	Close() error
}
