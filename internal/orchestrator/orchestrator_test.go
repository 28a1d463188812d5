package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nadzzz/voicestudio/internal/emotion"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/settings"
	"github.com/nadzzz/voicestudio/internal/tts"
)

type fakeSynth struct {
	mu       sync.Mutex
	delays   map[string]time.Duration
	fail     map[string]error
	gate     chan struct{} // texts prefixed "slow" wait on it
	started  chan string
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request) (*tts.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, req.Text)
	d := f.delays[req.Text]
	err := f.fail[req.Text]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- req.Text
	}
	if f.gate != nil && strings.HasPrefix(req.Text, "slow") {
		<-f.gate
	}
	time.Sleep(d)
	if err != nil {
		return nil, err
	}
	return &tts.Result{Audio: []byte("wav:" + req.Text), ContentType: "audio/wav", Backend: "fake"}, nil
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// script builds a project with one segment per entry of lines.
func script(t *testing.T, lines ...[]string) *project.Project {
	t.Helper()
	p := project.New()
	bob, err := p.AddCharacter(project.Character{DisplayName: "Bob", Gender: project.GenderMale, Voice: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	for i, seg := range lines {
		id := 1
		if i > 0 {
			id = p.AddSegment()
		}
		for j, text := range seg {
			if j > 0 {
				if _, err := p.AddDialogue(id); err != nil {
					t.Fatal(err)
				}
			}
			if err := p.UpdateDialogue(id, j, func(d *project.Dialogue) {
				d.Text = text
				d.SpeakerID = bob.ID
			}); err != nil {
				t.Fatal(err)
			}
		}
	}
	return p
}

func collect(lines *[]Line) EmitFunc {
	return func(l Line) error {
		*lines = append(*lines, l)
		return nil
	}
}

func TestGenerate_EmitsInSourceOrder(t *testing.T) {
	synth := &fakeSynth{delays: map[string]time.Duration{
		"a1": 40 * time.Millisecond, "a2": 5 * time.Millisecond, "a3": 25 * time.Millisecond,
		"b1": 1 * time.Millisecond, "b2": 30 * time.Millisecond,
		"c1": 10 * time.Millisecond,
	}}
	o := New(synth, Options{Concurrency: 4})
	p := script(t, []string{"a1", "a2", "a3"}, []string{"b1", "b2"}, []string{"c1"})

	var got []Line
	if err := o.Generate(context.Background(), p, settings.Default(), nil, collect(&got)); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []string{"a1", "a2", "a3", "b1", "b2", "c1"}
	if len(got) != len(want) {
		t.Fatalf("emitted %d lines, want %d", len(got), len(want))
	}
	for i, l := range got {
		if l.Text != want[i] || l.Sequence != i {
			t.Errorf("line %d = %q (seq %d), want %q", i, l.Text, l.Sequence, want[i])
		}
		if string(l.Audio) != "wav:"+want[i] {
			t.Errorf("line %d audio = %q", i, l.Audio)
		}
	}
	if got[3].Segment != 2 || got[3].Index != 0 {
		t.Errorf("b1 at segment %d index %d", got[3].Segment, got[3].Index)
	}
	if st, id := o.Status(); st != StatusDone || id == "" {
		t.Errorf("status = %s run %q", st, id)
	}
}

func TestGenerate_BoundedConcurrency(t *testing.T) {
	synth := &fakeSynth{delays: map[string]time.Duration{}}
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = string(rune('a' + i))
		synth.delays[texts[i]] = 10 * time.Millisecond
	}
	o := New(synth, Options{Concurrency: 2})
	var got []Line
	if err := o.Generate(context.Background(), script(t, texts), settings.Default(), nil, collect(&got)); err != nil {
		t.Fatal(err)
	}
	if peak := synth.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak)
	}

	if o := New(synth, Options{Concurrency: 99}); o.concurrency != MaxConcurrency {
		t.Errorf("concurrency = %d", o.concurrency)
	}
}

func TestGenerate_SkipsBlankLines(t *testing.T) {
	synth := &fakeSynth{}
	o := New(synth, Options{Concurrency: 2})
	var got []Line
	err := o.Generate(context.Background(), script(t, []string{"one", "  ", "three"}), settings.Default(), nil, collect(&got))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("emitted %d", len(got))
	}
	if !got[1].Skipped || got[1].Audio != nil {
		t.Errorf("blank line = %+v", got[1])
	}
	if synth.callCount() != 2 {
		t.Errorf("backend calls = %d, want 2", synth.callCount())
	}
}

func TestGenerate_NothingToGenerate(t *testing.T) {
	o := New(&fakeSynth{}, Options{})
	err := o.Generate(context.Background(), project.New(), settings.Default(), nil, collect(new([]Line)))
	if !project.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if st, _ := o.Status(); st != StatusIdle {
		t.Errorf("status = %s", st)
	}
}

func TestGenerate_FailureStopsEmission(t *testing.T) {
	boom := errors.New("remote 503")
	synth := &fakeSynth{fail: map[string]error{"l3": boom}}
	o := New(synth, Options{Concurrency: 4})

	var got []Line
	err := o.Generate(context.Background(), script(t, []string{"l1", "l2", "l3", "l4", "l5"}), settings.Default(), nil, collect(&got))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("emitted %d lines before the failure, want 2", len(got))
	}
	if st, _ := o.Status(); st != StatusFailed {
		t.Errorf("status = %s", st)
	}
	if !errors.Is(o.Err(), boom) {
		t.Errorf("Err() = %v", o.Err())
	}
}

func TestGenerate_NewRunSupersedesOld(t *testing.T) {
	synth := &fakeSynth{gate: make(chan struct{}), started: make(chan string, 16)}
	o := New(synth, Options{Concurrency: 2})

	first := script(t, []string{"slow-1", "slow-2"}, []string{"slow-3"})
	var firstLines []Line
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- o.Generate(context.Background(), first, settings.Default(), nil, collect(&firstLines))
	}()
	<-synth.started // the first run has a call in flight

	var second []Line
	if err := o.Generate(context.Background(), script(t, []string{"fast"}), settings.Default(), nil, collect(&second)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first run err = %v", err)
	}
	close(synth.gate)

	if len(firstLines) != 0 {
		t.Errorf("superseded run emitted %d lines", len(firstLines))
	}
	if len(second) != 1 || second[0].Text != "fast" {
		t.Errorf("second run = %+v", second)
	}
	if st, _ := o.Status(); st != StatusDone {
		t.Errorf("status = %s", st)
	}
}

func TestCancel(t *testing.T) {
	synth := &fakeSynth{gate: make(chan struct{}), started: make(chan string, 4)}
	defer close(synth.gate)
	o := New(synth, Options{})

	errc := make(chan error, 1)
	go func() {
		errc <- o.Generate(context.Background(), script(t, []string{"slow"}), settings.Default(), nil, collect(new([]Line)))
	}()
	<-synth.started
	o.Cancel()

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("err = %v", err)
	}
	if st, _ := o.Status(); st != StatusIdle {
		t.Errorf("status = %s", st)
	}
}

func TestGenerate_UsesSnapshot(t *testing.T) {
	synth := &fakeSynth{}
	o := New(synth, Options{Concurrency: 1})
	p := script(t, []string{"first", "second"})

	var got []Line
	err := o.Generate(context.Background(), p, settings.Default(), nil, func(l Line) error {
		if l.Index == 0 {
			_ = p.UpdateDialogue(1, 1, func(d *project.Dialogue) { d.Text = "edited" })
		}
		got = append(got, l)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got[1].Text != "second" {
		t.Errorf("edit leaked into the run: %q", got[1].Text)
	}
}

func TestGenerate_InnerVoice(t *testing.T) {
	s := settings.Default().With(func(s *settings.Settings) {
		s.InnerVoice.Enabled = true
		s.InnerVoice.Style = tts.InnerVoiceDeep
	})

	var seen tts.InnerVoice
	ok := New(&fakeSynth{}, Options{PostProcess: func(b []byte, iv tts.InnerVoice) ([]byte, error) {
		seen = iv
		return append(b, "+echo"...), nil
	}})
	line, err := ok.GenerateText(context.Background(), "hi", "", s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(line.Audio) != "wav:hi+echo" || seen.Style != tts.InnerVoiceDeep {
		t.Errorf("audio = %q style = %s", line.Audio, seen.Style)
	}

	failing := New(&fakeSynth{}, Options{PostProcess: func([]byte, tts.InnerVoice) ([]byte, error) {
		return nil, errors.New("not wav")
	}})
	line, err = failing.GenerateText(context.Background(), "hi", "", s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(line.Audio) != "wav:hi" {
		t.Errorf("raw audio not kept: %q", line.Audio)
	}
}

func TestGenerate_InnerVoiceSurvivesLaterFailure(t *testing.T) {
	synth := &fakeSynth{
		delays: map[string]time.Duration{"first": 100 * time.Millisecond},
		fail:   map[string]error{"second": errors.New("boom")},
	}
	o := New(synth, Options{Concurrency: 2, PostProcess: func(b []byte, _ tts.InnerVoice) ([]byte, error) {
		return append(b, "+echo"...), nil
	}})
	p := script(t, []string{"first", "second"})
	if err := p.SetDialogueInnerVoice(1, 0, true, tts.InnerVoiceLight); err != nil {
		t.Fatal(err)
	}

	var got []Line
	err := o.Generate(context.Background(), p, settings.Default(), nil, collect(&got))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(got) != 1 {
		t.Fatalf("emitted %d lines, want 1", len(got))
	}
	if string(got[0].Audio) != "wav:first+echo" {
		t.Errorf("audio = %q, want inner voice applied", got[0].Audio)
	}
}

func TestPlan_DanglingSpeakerUsesDefaultNarrator(t *testing.T) {
	p, err := project.Decode(strings.NewReader(`{
  "segments": [{"id": 1, "dialogues": [{"speaker": "bob", "text": "Hi."}, {"speaker": "ghost", "text": "Boo."}]}],
  "characters": [{"id": "bob", "name": "Bob", "gender": "male", "voice": "Brian"}]
}`), project.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	jobs := plan(p, settings.Default(), nil)
	if len(jobs) != 2 {
		t.Fatalf("planned %d jobs", len(jobs))
	}
	if j := jobs[1]; j.line.SpeakerID != project.NarratorID || j.req.Voice != project.DefaultVoice {
		t.Errorf("dangling line speaker %q voice %q", j.line.SpeakerID, j.req.Voice)
	}
}

func TestGenerateText_SingleModeEmotion(t *testing.T) {
	lib := emotion.NewLibrary([]emotion.Preset{{
		ID: emotion.PersistedID("e1"), Name: "Happy",
		Exaggeration: 1.4, CFGWeight: 0.3, Temperature: 0.9, Speed: 1.1,
	}})
	s := settings.Default().With(func(s *settings.Settings) { s.SingleModeEmotion = "happy" })

	line, err := New(&fakeSynth{}, Options{}).GenerateText(context.Background(), "hello", "Bob", s, lib)
	if err != nil {
		t.Fatal(err)
	}
	if line.Request.Voice != "Bob" || line.Request.Emotion != "happy" || line.Request.Exaggeration != 1.4 {
		t.Errorf("request = %+v", line.Request)
	}
}
