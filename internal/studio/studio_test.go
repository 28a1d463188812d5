package studio

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/nadzzz/voicestudio/internal/orchestrator"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/settings"
	"github.com/nadzzz/voicestudio/internal/tts"
	"github.com/nadzzz/voicestudio/internal/voice"
)

func newSession(auto bool) *Session {
	s := settings.Default()
	s.AutoAssignVoices = auto
	return New(voice.NewEngine(voice.DefaultPool(), 7), s)
}

func TestEdit_AllOrNothing(t *testing.T) {
	s := newSession(true)
	err := s.Edit(func(p *project.Project) error {
		p.AddSegment()
		return p.DeleteDialogue(99, 0)
	})
	if !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if n := len(s.Project().Segments); n != 1 {
		t.Errorf("failed edit left %d segments", n)
	}

	if err := s.Edit(func(p *project.Project) error { p.AddSegment(); return nil }); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Project().Segments); n != 2 {
		t.Errorf("segments = %d", n)
	}
}

func TestAddCharacter_AssignsVoice(t *testing.T) {
	s := newSession(true)
	c, err := s.AddCharacter(project.Character{DisplayName: "Bob", Gender: project.GenderMale})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(voice.DefaultPool().Male, c.Voice) {
		t.Errorf("voice %q is not a male voice", c.Voice)
	}

	manual, err := newSession(false).AddCharacter(project.Character{DisplayName: "Tom", Gender: project.GenderMale})
	if err != nil {
		t.Fatal(err)
	}
	if manual.Voice != project.DefaultVoice {
		t.Errorf("voice without auto-assign = %q, want %q", manual.Voice, project.DefaultVoice)
	}

	kept, err := s.AddCharacter(project.Character{DisplayName: "Ann", Gender: project.GenderFemale, Voice: "custom"})
	if err != nil {
		t.Fatal(err)
	}
	if kept.Voice != "custom" {
		t.Errorf("explicit voice replaced: %q", kept.Voice)
	}
}

func TestSetGender(t *testing.T) {
	for _, auto := range []bool{true, false} {
		s := newSession(auto)
		c, err := s.AddCharacter(project.Character{DisplayName: "Sam", Gender: project.GenderMale, Voice: "placeholder"})
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.SetGender(c.ID, project.GenderFemale)
		if err != nil {
			t.Fatal(err)
		}
		if got.Gender != project.GenderFemale {
			t.Errorf("gender = %s", got.Gender)
		}
		reassigned := slices.Contains(voice.DefaultPool().Female, got.Voice)
		if auto != reassigned {
			t.Errorf("auto=%v: voice = %q", auto, got.Voice)
		}
	}

	if _, err := newSession(true).SetGender("ghost", project.GenderMale); !errors.Is(err, project.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

const importDoc = `{
  "segments": [{"id": 1, "dialogues": [
    {"speaker": "bob", "text": "Hi."},
    {"speaker": "ann", "text": "Hello.", "emotion": "happy"}
  ]}],
  "characters": [
    {"id": "bob", "name": "Bob", "gender": "male"},
    {"id": "ann", "name": "Ann", "gender": "female", "voice": "Emily"}
  ]
}`

func TestImport_FillsVoices(t *testing.T) {
	s := newSession(true)
	if err := s.Import(strings.NewReader(importDoc), project.FormatJSON); err != nil {
		t.Fatal(err)
	}
	p := s.Project()
	bob, _ := p.Character("bob")
	ann, _ := p.Character("ann")
	if !slices.Contains(voice.DefaultPool().Male, bob.Voice) {
		t.Errorf("bob voice = %q", bob.Voice)
	}
	if ann.Voice != "Emily" {
		t.Errorf("ann voice = %q", ann.Voice)
	}

	manual := newSession(false)
	if err := manual.Import(strings.NewReader(importDoc), project.FormatJSON); err != nil {
		t.Fatal(err)
	}
	if bob, _ := manual.Project().Character("bob"); bob.Voice != "" {
		t.Errorf("voice filled with auto-assign off: %q", bob.Voice)
	}

	if err := s.Import(strings.NewReader(`{"segments": []}`), project.FormatJSON); !project.IsValidation(err) {
		t.Errorf("err = %v", err)
	}
	if _, ok := s.Project().Character("bob"); !ok {
		t.Error("failed import replaced the project")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newSession(true)
	if err := s.Import(strings.NewReader(importDoc), project.FormatJSON); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		t.Fatal(err)
	}
	other := newSession(false)
	if err := other.Import(&buf, project.FormatJSON); err != nil {
		t.Fatal(err)
	}
	if got, want := other.Project().Characters(), s.Project().Characters(); !slices.Equal(got, want) {
		t.Errorf("characters = %+v, want %+v", got, want)
	}
}

type echoSynth struct{}

func (echoSynth) Synthesize(_ context.Context, req tts.Request) (*tts.Result, error) {
	return &tts.Result{Audio: []byte(req.Voice + ":" + req.Text), Backend: "echo"}, nil
}

func TestGenerate_UsesSessionSnapshot(t *testing.T) {
	s := newSession(true)
	if err := s.Import(strings.NewReader(importDoc), project.FormatJSON); err != nil {
		t.Fatal(err)
	}
	s.UpdateSettings(func(st *settings.Settings) { st.Speed = 1.5 })

	var lines []orchestrator.Line
	err := s.Generate(context.Background(), orchestrator.New(echoSynth{}, orchestrator.Options{}), nil, func(l orchestrator.Line) error {
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || string(lines[1].Audio) != "Emily:Hello." {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].Request.Speed != 1.5 {
		t.Errorf("speed = %v", lines[0].Request.Speed)
	}
}
