// Package settings holds the global voice settings snapshot.
//
// Settings is a plain value: callers pass it by value into the resolver and
// the orchestrator, and changes go through With, which returns a new clamped
// snapshot. A run that already captured a snapshot never sees later edits.
package settings

import (
	"math"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// Bounds of the numeric voice parameters.
const (
	MinExaggeration = 0.0
	MaxExaggeration = 3.0
	MinCFGWeight    = 0.1
	MaxCFGWeight    = 1.0
	MinTemperature  = 0.0
	MaxTemperature  = 2.0
	MinSpeed        = 0.5
	MaxSpeed        = 3.0
)

// InnerVoiceDefault is the inner-voice processing applied to lines that do
// not override it.
type InnerVoiceDefault struct {
	Enabled   bool                `json:"enabled" mapstructure:"enabled"`
	Style     tts.InnerVoiceStyle `json:"style" mapstructure:"style"`
	MixVolume float64             `json:"mix_volume" mapstructure:"mix_volume"`
}

// Settings is the global voice settings snapshot.
type Settings struct {
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	CFGWeight    float64 `json:"cfg_weight" mapstructure:"cfg_weight"`
	Exaggeration float64 `json:"exaggeration" mapstructure:"exaggeration"`
	Speed        float64 `json:"speed" mapstructure:"speed"`

	// SingleModeEmotion is the preset label used when the project is in single mode.
	SingleModeEmotion string `json:"single_mode_emotion" mapstructure:"single_mode_emotion"`

	// AutoAssignVoices re-assigns a character's voice when its gender changes
	// and fills missing voices on import.
	AutoAssignVoices bool `json:"auto_assign_voices" mapstructure:"auto_assign_voices"`

	// Language is the ISO-639-1 code sent with every request.
	Language string `json:"language" mapstructure:"language"`

	InnerVoice InnerVoiceDefault `json:"inner_voice" mapstructure:"inner_voice"`
}

// Default returns the settings a fresh session starts with.
func Default() Settings {
	return Settings{
		Temperature:       0.7,
		CFGWeight:         0.5,
		Exaggeration:      1.0,
		Speed:             1.0,
		SingleModeEmotion: "neutral",
		AutoAssignVoices:  true,
		Language:          "en",
		InnerVoice: InnerVoiceDefault{
			Style:     tts.InnerVoiceLight,
			MixVolume: 0.5,
		},
	}
}

// With returns a copy of s with fn applied and every bound enforced.
func (s Settings) With(fn func(*Settings)) Settings {
	fn(&s)
	return s.Clamped()
}

// Clamped returns s with numeric fields forced into range. Non-finite values
// are replaced with the defaults, and unknown inner-voice styles fall back to light.
func (s Settings) Clamped() Settings {
	d := Default()
	s.Temperature = clamp(s.Temperature, MinTemperature, MaxTemperature, d.Temperature)
	s.CFGWeight = clamp(s.CFGWeight, MinCFGWeight, MaxCFGWeight, d.CFGWeight)
	s.Exaggeration = clamp(s.Exaggeration, MinExaggeration, MaxExaggeration, d.Exaggeration)
	s.Speed = clamp(s.Speed, MinSpeed, MaxSpeed, d.Speed)
	s.InnerVoice.MixVolume = clamp(s.InnerVoice.MixVolume, 0, 1, d.InnerVoice.MixVolume)
	if !s.InnerVoice.Style.Valid() {
		s.InnerVoice.Style = tts.InnerVoiceLight
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	return s
}

func clamp(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return math.Min(math.Max(v, lo), hi)
}
