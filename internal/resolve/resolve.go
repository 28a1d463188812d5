// Package resolve turns a character, a dialogue line and a settings snapshot
// into a finished synthesis request. It performs no I/O.
//
// Precedence, highest first:
//
//  1. the line's emotion label and inner-voice override
//  2. the character's assigned voice
//  3. the single-mode emotion, only when the project is in single mode
//
// A label that names no known preset keeps the label but takes its numeric
// parameters from the settings snapshot; a resolution gap never fails a line.
package resolve

import (
	"strings"

	"github.com/nadzzz/voicestudio/internal/emotion"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/settings"
	"github.com/nadzzz/voicestudio/internal/tts"
)

// Presets looks up emotion presets by label. emotion.Library implements it.
type Presets interface {
	Lookup(label string) (emotion.Preset, bool)
}

// Resolve builds the request for one line. presets may be nil.
func Resolve(c project.Character, d project.Dialogue, s settings.Settings, presets Presets, singleMode bool) tts.Request {
	req := tts.Request{
		Text:         d.Text,
		Voice:        c.Voice,
		Language:     s.Language,
		Exaggeration: s.Exaggeration,
		CFGWeight:    s.CFGWeight,
		Temperature:  s.Temperature,
		Speed:        s.Speed,
	}

	label := strings.TrimSpace(d.Emotion)
	if label == "" && singleMode {
		label = strings.TrimSpace(s.SingleModeEmotion)
	}
	req.Emotion = label

	if label != "" && presets != nil {
		if p, ok := presets.Lookup(label); ok {
			req.Exaggeration = p.Exaggeration
			req.CFGWeight = p.CFGWeight
			req.Temperature = p.Temperature
			req.Speed = p.Speed
		}
	}

	req.InnerVoice = innerVoice(d.InnerVoice, s.InnerVoice)
	return req
}

func innerVoice(line *project.InnerVoice, def settings.InnerVoiceDefault) *tts.InnerVoice {
	if line != nil {
		if !line.Enabled {
			return nil
		}
		style := line.Style
		if !style.Valid() {
			style = def.Style
		}
		return &tts.InnerVoice{Style: style, MixVolume: def.MixVolume}
	}
	if !def.Enabled {
		return nil
	}
	return &tts.InnerVoice{Style: def.Style, MixVolume: def.MixVolume}
}
