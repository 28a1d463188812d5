package project

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nadzzz/voicestudio/internal/tts"
)

var (
	// ErrNotFound is returned when a segment, dialogue or character does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMinimumContent is returned when an edit would remove the last
	// dialogue of a segment or the last segment of the project.
	ErrMinimumContent = errors.New("project must keep at least one segment and one dialogue per segment")

	// ErrNarratorRequired is returned when deleting the narrator character.
	ErrNarratorRequired = errors.New("narrator character cannot be removed")

	// ErrLastCharacter is returned when deleting the only character.
	ErrLastCharacter = errors.New("project must keep at least one character")
)

// defaultSpeaker is the speaker given to new lines: the first character.
func (p *Project) defaultSpeaker() string {
	if len(p.order) > 0 {
		return p.order[0]
	}
	return NarratorID
}

// AddSegment appends a new segment with one empty line and returns its id.
// The id is one more than the largest existing id.
func (p *Project) AddSegment() int {
	next := 1
	for _, s := range p.Segments {
		if s.ID >= next {
			next = s.ID + 1
		}
	}
	p.Segments = append(p.Segments, Segment{
		ID:        next,
		Dialogues: []Dialogue{{SpeakerID: p.defaultSpeaker(), Emotion: DefaultEmotion}},
	})
	return next
}

// DeleteSegment removes a segment. Removing the only segment is rejected.
func (p *Project) DeleteSegment(segmentID int) error {
	i := p.segmentIndex(segmentID)
	if i < 0 {
		return fmt.Errorf("segment %d: %w", segmentID, ErrNotFound)
	}
	if len(p.Segments) <= 1 {
		return ErrMinimumContent
	}
	p.Segments = slices.Delete(p.Segments, i, i+1)
	return nil
}

// AddDialogue appends an empty line to a segment and returns its index.
func (p *Project) AddDialogue(segmentID int) (int, error) {
	i := p.segmentIndex(segmentID)
	if i < 0 {
		return 0, fmt.Errorf("segment %d: %w", segmentID, ErrNotFound)
	}
	seg := &p.Segments[i]
	seg.Dialogues = append(seg.Dialogues, Dialogue{SpeakerID: p.defaultSpeaker(), Emotion: DefaultEmotion})
	return len(seg.Dialogues) - 1, nil
}

// UpdateDialogue applies fn to the line at index within a segment.
func (p *Project) UpdateDialogue(segmentID, index int, fn func(d *Dialogue)) error {
	d, err := p.dialogue(segmentID, index)
	if err != nil {
		return err
	}
	fn(d)
	return nil
}

// SetDialogueInnerVoice sets or clears (style == "") the inner-voice override of a line.
func (p *Project) SetDialogueInnerVoice(segmentID, index int, enabled bool, style tts.InnerVoiceStyle) error {
	if style != "" && !style.Valid() {
		return &ValidationError{Field: "inner_voice_type", Reason: fmt.Sprintf("unknown style %q", style)}
	}
	return p.UpdateDialogue(segmentID, index, func(d *Dialogue) {
		if !enabled && style == "" {
			d.InnerVoice = nil
			return
		}
		if style == "" {
			style = tts.InnerVoiceLight
		}
		d.InnerVoice = &InnerVoice{Enabled: enabled, Style: style}
	})
}

// DeleteDialogue removes a line. Removing the only line of a segment is rejected.
func (p *Project) DeleteDialogue(segmentID, index int) error {
	i := p.segmentIndex(segmentID)
	if i < 0 {
		return fmt.Errorf("segment %d: %w", segmentID, ErrNotFound)
	}
	seg := &p.Segments[i]
	if index < 0 || index >= len(seg.Dialogues) {
		return fmt.Errorf("segment %d dialogue %d: %w", segmentID, index, ErrNotFound)
	}
	if len(seg.Dialogues) <= 1 {
		return ErrMinimumContent
	}
	seg.Dialogues = slices.Delete(seg.Dialogues, index, index+1)
	return nil
}

// AddCharacter adds a character. An empty id is replaced with the next
// free "characterN" id.
func (p *Project) AddCharacter(c Character) (Character, error) {
	if c.ID == "" {
		for n := len(p.order) + 1; ; n++ {
			id := fmt.Sprintf("character%d", n)
			if _, taken := p.characters[id]; !taken {
				c.ID = id
				if c.DisplayName == "" {
					c.DisplayName = fmt.Sprintf("Character %d", n)
				}
				break
			}
		}
	}
	if _, exists := p.characters[c.ID]; exists {
		return Character{}, &ValidationError{Field: "id", Reason: fmt.Sprintf("character %q already exists", c.ID)}
	}
	if c.Gender == "" {
		c.Gender = GenderNeutral
	}
	if c.DisplayName == "" {
		c.DisplayName = c.ID
	}
	p.putCharacter(c)
	return c, nil
}

// UpdateCharacter applies fn to a character. The id cannot be changed.
func (p *Project) UpdateCharacter(id string, fn func(c *Character)) error {
	c, ok := p.characters[id]
	if !ok {
		return fmt.Errorf("character %q: %w", id, ErrNotFound)
	}
	fn(&c)
	c.ID = id
	p.characters[id] = c
	return nil
}

// DeleteCharacter removes a character. Lines that referenced it resolve to
// the narrator from then on.
func (p *Project) DeleteCharacter(id string) error {
	if id == NarratorID {
		return ErrNarratorRequired
	}
	if _, ok := p.characters[id]; !ok {
		return fmt.Errorf("character %q: %w", id, ErrNotFound)
	}
	if len(p.order) <= 1 {
		return ErrLastCharacter
	}
	delete(p.characters, id)
	p.order = slices.DeleteFunc(p.order, func(s string) bool { return s == id })
	return nil
}

func (p *Project) dialogue(segmentID, index int) (*Dialogue, error) {
	i := p.segmentIndex(segmentID)
	if i < 0 {
		return nil, fmt.Errorf("segment %d: %w", segmentID, ErrNotFound)
	}
	seg := &p.Segments[i]
	if index < 0 || index >= len(seg.Dialogues) {
		return nil, fmt.Errorf("segment %d dialogue %d: %w", segmentID, index, ErrNotFound)
	}
	return &seg.Dialogues[index], nil
}

// ValidationError reports invalid input: empty text for a whole request or a
// malformed import file. Nothing is attempted when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func trimmed(s string) string { return strings.TrimSpace(s) }
