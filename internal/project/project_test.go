package project

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/nadzzz/voicestudio/internal/tts"
)

func TestNew_Defaults(t *testing.T) {
	p := New()
	if len(p.Segments) != 1 || len(p.Segments[0].Dialogues) != 1 {
		t.Fatalf("expected one segment with one line, got %+v", p.Segments)
	}
	n, ok := p.Character(NarratorID)
	if !ok {
		t.Fatal("narrator missing")
	}
	if n.Voice != "Alice" || n.Gender != GenderNeutral {
		t.Errorf("narrator = %+v", n)
	}
	if !p.IsSingleMode() {
		t.Error("default project should be in single mode")
	}
	if p.HasText() {
		t.Error("default project has no text")
	}
}

func TestDeleteDialogue_RejectsLastLine(t *testing.T) {
	p := New()
	err := p.DeleteDialogue(1, 0)
	if !errors.Is(err, ErrMinimumContent) {
		t.Fatalf("err = %v, want ErrMinimumContent", err)
	}
	if len(p.Segments[0].Dialogues) != 1 {
		t.Error("project was modified")
	}
}

func TestDeleteSegment_RejectsLastSegment(t *testing.T) {
	p := New()
	if err := p.DeleteSegment(1); !errors.Is(err, ErrMinimumContent) {
		t.Fatalf("err = %v, want ErrMinimumContent", err)
	}
	id := p.AddSegment()
	if id != 2 {
		t.Fatalf("new segment id = %d, want 2", id)
	}
	if err := p.DeleteSegment(1); err != nil {
		t.Fatalf("DeleteSegment: %v", err)
	}
	if len(p.Segments) != 1 || p.Segments[0].ID != 2 {
		t.Errorf("segments = %+v", p.Segments)
	}
	if err := p.DeleteSegment(2); !errors.Is(err, ErrMinimumContent) {
		t.Errorf("err = %v, want ErrMinimumContent", err)
	}
}

func TestAddSegment_IDsStayUnique(t *testing.T) {
	p := New()
	a := p.AddSegment()
	b := p.AddSegment()
	if err := p.DeleteSegment(a); err != nil {
		t.Fatal(err)
	}
	c := p.AddSegment()
	if c == b || c == 1 {
		t.Errorf("reused segment id %d", c)
	}
}

func TestCharacters(t *testing.T) {
	p := New()
	c, err := p.AddCharacter(Character{Gender: GenderFemale})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != "character2" || c.DisplayName != "Character 2" {
		t.Errorf("generated character = %+v", c)
	}
	if _, err := p.AddCharacter(Character{ID: c.ID}); !IsValidation(err) {
		t.Errorf("duplicate id err = %v", err)
	}
	if err := p.DeleteCharacter(NarratorID); !errors.Is(err, ErrNarratorRequired) {
		t.Errorf("delete narrator err = %v", err)
	}

	if err := p.UpdateDialogue(1, 0, func(d *Dialogue) { d.SpeakerID = c.ID }); err != nil {
		t.Fatal(err)
	}
	if err := p.DeleteCharacter(c.ID); err != nil {
		t.Fatal(err)
	}
	if got := p.Speaker(c.ID); got.ID != NarratorID {
		t.Errorf("dangling speaker resolved to %q, want narrator", got.ID)
	}
}

const castOnlyJSON = `{
  "segments": [{"id": 1, "dialogues": [{"speaker": "ghost", "text": "Boo."}]}],
  "characters": [{"id": "bob", "name": "Bob", "gender": "male", "voice": "Brian"}]
}`

func TestSpeaker_DanglingWithoutNarrator(t *testing.T) {
	p, err := Decode(strings.NewReader(castOnlyJSON), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Character(NarratorID); ok {
		t.Fatal("narrator added although characters were declared")
	}
	got := p.Speaker("ghost")
	if got.ID != NarratorID || got.Voice != DefaultVoice {
		t.Errorf("dangling speaker = %+v, want default narrator", got)
	}
}

func TestDeleteCharacter_RejectsLastCharacter(t *testing.T) {
	p, err := Decode(strings.NewReader(castOnlyJSON), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.DeleteCharacter("bob"); !errors.Is(err, ErrLastCharacter) {
		t.Fatalf("err = %v, want ErrLastCharacter", err)
	}
	if len(p.Characters()) != 1 {
		t.Errorf("characters = %+v", p.Characters())
	}
}

func TestClone_IsolatesEdits(t *testing.T) {
	p := New()
	if err := p.SetDialogueInnerVoice(1, 0, true, tts.InnerVoiceDeep); err != nil {
		t.Fatal(err)
	}
	snap := p.Clone()
	_ = p.UpdateDialogue(1, 0, func(d *Dialogue) {
		d.Text = "changed"
		d.InnerVoice.Style = tts.InnerVoiceDreamy
	})
	d := snap.Segments[0].Dialogues[0]
	if d.Text != "" || d.InnerVoice.Style != tts.InnerVoiceDeep {
		t.Errorf("clone saw live edit: %+v", d)
	}
}

const sampleJSON = `{
  "segments": [
    {"id": 1, "dialogues": [
      {"speaker": "narrator", "text": "It was dark.", "emotion": "calm"},
      {"speaker": "bob", "text": "Who's there?", "emotion": "fearful", "inner_voice": true, "inner_voice_type": "deep"}
    ]},
    {"id": 2, "dialogues": [
      {"speaker": "ann", "text": "Only me."}
    ]}
  ],
  "characters": [
    {"id": "narrator", "name": "Narrator", "gender": "neutral", "voice": "Alice"},
    {"id": "bob", "name": "Bob", "gender": "male"},
    {"id": "ann", "name": "Ann", "gender": "Female", "voice": "Emily"}
  ]
}`

func TestDecode_PreservesFields(t *testing.T) {
	p, err := Decode(strings.NewReader(sampleJSON), FormatJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Segments) != 2 || p.DialogueCount() != 3 {
		t.Fatalf("segments = %+v", p.Segments)
	}
	line := p.Segments[0].Dialogues[1]
	if line.Emotion != "fearful" {
		t.Errorf("emotion = %q", line.Emotion)
	}
	if line.InnerVoice == nil || !line.InnerVoice.Enabled || line.InnerVoice.Style != tts.InnerVoiceDeep {
		t.Errorf("inner voice = %+v", line.InnerVoice)
	}
	ann, _ := p.Character("ann")
	if ann.Gender != GenderFemale || ann.Voice != "Emily" {
		t.Errorf("ann = %+v", ann)
	}
	bob, _ := p.Character("bob")
	if bob.Voice != "" {
		t.Errorf("bob voice = %q, want empty before auto-assign", bob.Voice)
	}
	ids := []string{}
	for _, c := range p.Characters() {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "narrator,bob,ann" {
		t.Errorf("character order = %v", ids)
	}
}

func TestDecode_YAML(t *testing.T) {
	src := `
segments:
  - dialogues:
      - speaker: narrator
        text: Hello
        inner_voice_type: dreamy
  - dialogues:
      - text: Again
characters: []
`
	p, err := Decode(strings.NewReader(src), FormatYAML)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Segments[0].ID != 1 || p.Segments[1].ID != 2 {
		t.Errorf("assigned ids = %d,%d", p.Segments[0].ID, p.Segments[1].ID)
	}
	iv := p.Segments[0].Dialogues[0].InnerVoice
	if iv == nil || iv.Enabled || iv.Style != tts.InnerVoiceDreamy {
		t.Errorf("inner voice = %+v", iv)
	}
	if _, ok := p.Character(NarratorID); !ok {
		t.Error("narrator should be added when no characters are declared")
	}
	if p.Segments[1].Dialogues[0].SpeakerID != NarratorID {
		t.Error("missing speaker should default to narrator")
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"malformed", `{"segments": [`},
		{"no segments", `{"segments": [], "characters": []}`},
		{"empty segment", `{"segments": [{"id": 1, "dialogues": []}]}`},
		{"duplicate segment", `{"segments": [{"id": 1, "dialogues": [{"text": "a"}]}, {"id": 1, "dialogues": [{"text": "b"}]}]}`},
		{"duplicate character", `{"segments": [{"id": 1, "dialogues": [{"text": "a"}]}], "characters": [{"id": "x"}, {"id": "x"}]}`},
		{"bad gender", `{"segments": [{"id": 1, "dialogues": [{"text": "a"}]}], "characters": [{"id": "x", "gender": "robot"}]}`},
		{"bad style", `{"segments": [{"id": 1, "dialogues": [{"text": "a", "inner_voice_type": "loud"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src), FormatJSON)
			if !IsValidation(err) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	p, err := Decode(strings.NewReader(sampleJSON), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	q, err := Decode(&buf, FormatJSON)
	if err != nil {
		t.Fatalf("re-Decode: %v", err)
	}
	for i := range p.Segments {
		for j, d := range p.Segments[i].Dialogues {
			e := q.Segments[i].Dialogues[j]
			if d.Text != e.Text || d.SpeakerID != e.SpeakerID || d.Emotion != e.Emotion {
				t.Errorf("line %d/%d: %+v != %+v", i, j, d, e)
			}
			if (d.InnerVoice == nil) != (e.InnerVoice == nil) {
				t.Errorf("line %d/%d inner voice mismatch", i, j)
			}
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	if FormatFromPath("a/b.YML") != FormatYAML {
		t.Error("yml")
	}
	if FormatFromPath("story.json") != FormatJSON || FormatFromPath("noext") != FormatJSON {
		t.Error("json default")
	}
}
