package project

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nadzzz/voicestudio/internal/tts"
)

// Format is the encoding of a project file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension; JSON is the default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// fileProject is the on-disk import/export shape.
type fileProject struct {
	Segments   []fileSegment   `json:"segments" yaml:"segments"`
	Characters []fileCharacter `json:"characters" yaml:"characters"`
}

type fileSegment struct {
	ID        int            `json:"id" yaml:"id"`
	Dialogues []fileDialogue `json:"dialogues" yaml:"dialogues"`
}

type fileDialogue struct {
	Speaker        string `json:"speaker" yaml:"speaker"`
	Text           string `json:"text" yaml:"text"`
	Emotion        string `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	InnerVoice     *bool  `json:"inner_voice,omitempty" yaml:"inner_voice,omitempty"`
	InnerVoiceType string `json:"inner_voice_type,omitempty" yaml:"inner_voice_type,omitempty"`
}

type fileCharacter struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Gender string `json:"gender" yaml:"gender"`
	Voice  string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// Decode parses and validates a project file. Emotion and inner-voice fields
// of every dialogue are preserved. Characters without a voice keep an empty
// voice; filling it is the caller's decision (auto-assign).
func Decode(r io.Reader, format Format) (*Project, error) {
	var fp fileProject
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&fp); err != nil {
			return nil, &ValidationError{Field: "file", Reason: fmt.Sprintf("invalid yaml: %v", err)}
		}
	default:
		if err := json.NewDecoder(r).Decode(&fp); err != nil {
			return nil, &ValidationError{Field: "file", Reason: fmt.Sprintf("invalid json: %v", err)}
		}
	}
	return fp.toProject()
}

func (fp fileProject) toProject() (*Project, error) {
	if len(fp.Segments) == 0 {
		return nil, &ValidationError{Field: "segments", Reason: "at least one segment is required"}
	}

	p := &Project{characters: make(map[string]Character)}
	for i, fc := range fp.Characters {
		id := trimmed(fc.ID)
		if id == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("characters[%d].id", i), Reason: "id is required"}
		}
		if _, dup := p.characters[id]; dup {
			return nil, &ValidationError{Field: fmt.Sprintf("characters[%d].id", i), Reason: fmt.Sprintf("duplicate id %q", id)}
		}
		gender, err := ParseGender(fc.Gender)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("characters[%d].gender", i), Reason: err.(*ValidationError).Reason}
		}
		name := fc.Name
		if name == "" {
			name = id
		}
		p.putCharacter(Character{ID: id, DisplayName: name, Gender: gender, Voice: trimmed(fc.Voice)})
	}
	if len(p.characters) == 0 {
		p.putCharacter(Narrator())
	}

	seen := make(map[int]bool, len(fp.Segments))
	for i, fs := range fp.Segments {
		if len(fs.Dialogues) == 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("segments[%d].dialogues", i), Reason: "a segment needs at least one dialogue"}
		}
		if fs.ID > 0 {
			if seen[fs.ID] {
				return nil, &ValidationError{Field: fmt.Sprintf("segments[%d].id", i), Reason: fmt.Sprintf("duplicate segment id %d", fs.ID)}
			}
			seen[fs.ID] = true
		}
		seg := Segment{ID: fs.ID, Dialogues: make([]Dialogue, 0, len(fs.Dialogues))}
		for j, fd := range fs.Dialogues {
			d := Dialogue{SpeakerID: trimmed(fd.Speaker), Text: fd.Text, Emotion: trimmed(fd.Emotion)}
			if d.SpeakerID == "" {
				d.SpeakerID = NarratorID
			}
			if fd.InnerVoice != nil || fd.InnerVoiceType != "" {
				style := tts.InnerVoiceStyle(strings.ToLower(trimmed(fd.InnerVoiceType)))
				if style == "" {
					style = tts.InnerVoiceLight
				}
				if !style.Valid() {
					return nil, &ValidationError{
						Field:  fmt.Sprintf("segments[%d].dialogues[%d].inner_voice_type", i, j),
						Reason: fmt.Sprintf("unknown style %q", fd.InnerVoiceType),
					}
				}
				d.InnerVoice = &InnerVoice{Enabled: fd.InnerVoice != nil && *fd.InnerVoice, Style: style}
			}
			seg.Dialogues = append(seg.Dialogues, d)
		}
		p.Segments = append(p.Segments, seg)
	}

	// Segments without an id get fresh ones after the largest explicit id.
	next := 1
	for id := range seen {
		if id >= next {
			next = id + 1
		}
	}
	for i := range p.Segments {
		if p.Segments[i].ID <= 0 {
			p.Segments[i].ID = next
			next++
		}
	}
	return p, nil
}

// Encode writes the project in the import format as indented JSON.
func Encode(w io.Writer, p *Project) error {
	fp := fileProject{
		Segments:   make([]fileSegment, 0, len(p.Segments)),
		Characters: make([]fileCharacter, 0, len(p.order)),
	}
	for _, c := range p.Characters() {
		fp.Characters = append(fp.Characters, fileCharacter{ID: c.ID, Name: c.DisplayName, Gender: string(c.Gender), Voice: c.Voice})
	}
	for _, s := range p.Segments {
		fs := fileSegment{ID: s.ID, Dialogues: make([]fileDialogue, 0, len(s.Dialogues))}
		for _, d := range s.Dialogues {
			fd := fileDialogue{Speaker: d.SpeakerID, Text: d.Text, Emotion: d.Emotion}
			if d.InnerVoice != nil {
				enabled := d.InnerVoice.Enabled
				fd.InnerVoice = &enabled
				fd.InnerVoiceType = string(d.InnerVoice.Style)
			}
			fs.Dialogues = append(fs.Dialogues, fd)
		}
		fp.Segments = append(fp.Segments, fs)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fp)
}
