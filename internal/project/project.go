// Package project holds the authoring data model: characters, ordered
// segments and their dialogue lines.
//
// Segment order and dialogue order are the playback and generation order.
// All edit operations keep the invariants below or leave the project
// untouched:
//
//   - segment ids are unique
//   - every segment has at least one dialogue, and the project has at least one segment
//   - there is at least one character, and the narrator cannot be deleted
package project

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// NarratorID is the id of the default character. Dialogue lines whose
// speaker does not resolve fall back to it.
const NarratorID = "narrator"

// DefaultEmotion is the emotion label given to new dialogue lines.
const DefaultEmotion = "neutral"

// Gender is the declared gender of a character.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// ParseGender maps free-form input to a Gender. Unknown values are rejected.
func ParseGender(s string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	case GenderNeutral, "":
		return GenderNeutral, nil
	}
	return "", &ValidationError{Field: "gender", Reason: fmt.Sprintf("unknown gender %q", s)}
}

// Character is a speaker in the project.
type Character struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"name" yaml:"name"`
	Gender      Gender `json:"gender" yaml:"gender"`

	// Voice is the assigned voice identity; empty when none was assigned.
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// InnerVoice is the per-line inner-voice override.
type InnerVoice struct {
	Enabled bool                `json:"enabled"`
	Style   tts.InnerVoiceStyle `json:"style"`
}

// Dialogue is one line of text spoken by a character.
type Dialogue struct {
	SpeakerID string `json:"speaker"`
	Text      string `json:"text"`

	// Emotion is an optional preset label.
	Emotion string `json:"emotion,omitempty"`

	// InnerVoice is nil when the line does not override the global default.
	InnerVoice *InnerVoice `json:"inner_voice,omitempty"`
}

// Segment is an ordered group of dialogue lines.
type Segment struct {
	ID        int        `json:"id"`
	Dialogues []Dialogue `json:"dialogues"`
}

// Project is the full authoring document.
type Project struct {
	Segments   []Segment
	characters map[string]Character
	order      []string // character ids in insertion order
}

// DefaultVoice is the narrator's voice and the voice of characters added
// without automatic assignment.
const DefaultVoice = "Alice"

// Narrator returns the default narrator character.
func Narrator() Character {
	return Character{ID: NarratorID, DisplayName: "Narrator", Gender: GenderNeutral, Voice: DefaultVoice}
}

// New returns the default project: one segment holding one empty narrator
// line, and the narrator character.
func New() *Project {
	p := &Project{characters: make(map[string]Character)}
	p.putCharacter(Narrator())
	p.Segments = []Segment{{
		ID:        1,
		Dialogues: []Dialogue{{SpeakerID: NarratorID, Emotion: DefaultEmotion}},
	}}
	return p
}

// Single returns a single-mode project: the narrator speaking text. A
// non-empty voice replaces the narrator's default voice.
func Single(text, voice string) *Project {
	p := New()
	p.Segments[0].Dialogues[0] = Dialogue{SpeakerID: NarratorID, Text: text}
	if voice != "" {
		n := p.characters[NarratorID]
		n.Voice = voice
		p.characters[NarratorID] = n
	}
	return p
}

// Clone returns a deep copy. The orchestrator works from clones so that
// edits made while a run is in flight never reach already-issued requests.
func (p *Project) Clone() *Project {
	c := &Project{
		Segments:   make([]Segment, len(p.Segments)),
		characters: make(map[string]Character, len(p.characters)),
		order:      slices.Clone(p.order),
	}
	for k, v := range p.characters {
		c.characters[k] = v
	}
	for i, s := range p.Segments {
		ds := make([]Dialogue, len(s.Dialogues))
		for j, d := range s.Dialogues {
			if d.InnerVoice != nil {
				iv := *d.InnerVoice
				d.InnerVoice = &iv
			}
			ds[j] = d
		}
		c.Segments[i] = Segment{ID: s.ID, Dialogues: ds}
	}
	return c
}

// Characters returns the characters in insertion order.
func (p *Project) Characters() []Character {
	out := make([]Character, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.characters[id])
	}
	return out
}

// Character looks up a character by id.
func (p *Project) Character(id string) (Character, bool) {
	c, ok := p.characters[id]
	return c, ok
}

// Speaker resolves a dialogue speaker reference. Dangling references fall
// back to the project's narrator, or the default narrator when the project
// has none.
func (p *Project) Speaker(id string) Character {
	if c, ok := p.characters[id]; ok {
		return c
	}
	if c, ok := p.characters[NarratorID]; ok {
		return c
	}
	return Narrator()
}

// DialogueCount returns the number of lines across all segments.
func (p *Project) DialogueCount() int {
	n := 0
	for _, s := range p.Segments {
		n += len(s.Dialogues)
	}
	return n
}

// IsSingleMode reports whether the project has exactly one character and
// exactly one dialogue line. In single mode the global settings drive
// synthesis instead of per-line resolution.
func (p *Project) IsSingleMode() bool {
	return len(p.characters) == 1 && p.DialogueCount() == 1
}

// HasText reports whether any line has non-blank text.
func (p *Project) HasText() bool {
	for _, s := range p.Segments {
		for _, d := range s.Dialogues {
			if strings.TrimSpace(d.Text) != "" {
				return true
			}
		}
	}
	return false
}

func (p *Project) putCharacter(c Character) {
	if _, exists := p.characters[c.ID]; !exists {
		p.order = append(p.order, c.ID)
	}
	p.characters[c.ID] = c
}

func (p *Project) segmentIndex(id int) int {
	return slices.IndexFunc(p.Segments, func(s Segment) bool { return s.ID == id })
}
