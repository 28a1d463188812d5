// Package studio holds an authoring session: the live project, the global
// voice settings and the voice engine that fills in character voices.
//
// Edits run against a copy of the project and are committed only when they
// succeed, so a rejected edit never leaves the session half-changed.
package studio

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/nadzzz/voicestudio/internal/orchestrator"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/resolve"
	"github.com/nadzzz/voicestudio/internal/settings"
	"github.com/nadzzz/voicestudio/internal/voice"
)

// Session is safe for concurrent use.
type Session struct {
	voices *voice.Engine

	mu       sync.Mutex
	project  *project.Project
	settings settings.Settings
}

// New starts a session on the default project.
func New(voices *voice.Engine, s settings.Settings) *Session {
	return &Session{voices: voices, project: project.New(), settings: s.Clamped()}
}

// Project returns a copy of the current project.
func (s *Session) Project() *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project.Clone()
}

// Settings returns the current settings snapshot.
func (s *Session) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies fn to the settings; out-of-range values are clamped.
func (s *Session) UpdateSettings(fn func(*settings.Settings)) settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = s.settings.With(fn)
	return s.settings
}

// Edit runs fn on a copy of the project and commits it if fn succeeds.
func (s *Session) Edit(fn func(p *project.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.project.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.project = next
	return nil
}

// AddCharacter adds a character. One without a voice gets an assigned voice
// when auto-assign is on and the default voice otherwise.
func (s *Session) AddCharacter(c project.Character) (project.Character, error) {
	if c.Voice == "" && s.Settings().AutoAssignVoices {
		c = s.voices.AssignCharacter(c)
	}
	if c.Voice == "" {
		c.Voice = project.DefaultVoice
	}
	var added project.Character
	err := s.Edit(func(p *project.Project) error {
		var err error
		added, err = p.AddCharacter(c)
		return err
	})
	return added, err
}

// SetGender changes a character's declared gender. With auto-assign on the
// character also gets a new voice drawn for that gender.
func (s *Session) SetGender(id string, g project.Gender) (project.Character, error) {
	auto := s.Settings().AutoAssignVoices
	var updated project.Character
	err := s.Edit(func(p *project.Project) error {
		if err := p.UpdateCharacter(id, func(c *project.Character) {
			c.Gender = g
			if auto {
				*c = s.voices.AssignCharacter(*c)
			}
		}); err != nil {
			return err
		}
		updated, _ = p.Character(id)
		return nil
	})
	if err == nil && auto {
		slog.Debug("voice reassigned", "character", id, "gender", g, "voice", updated.Voice)
	}
	return updated, err
}

// Import replaces the project with one decoded from r. Characters without a
// voice get one when auto-assign is on.
func (s *Session) Import(r io.Reader, format project.Format) error {
	p, err := project.Decode(r, format)
	if err != nil {
		return err
	}
	filled := 0
	if s.Settings().AutoAssignVoices {
		filled = s.voices.FillMissing(p)
	}

	s.mu.Lock()
	s.project = p
	s.mu.Unlock()

	slog.Info("project imported",
		"segments", len(p.Segments),
		"characters", len(p.Characters()),
		"voices_assigned", filled,
	)
	return nil
}

// Export writes the project in the import format.
func (s *Session) Export(w io.Writer) error {
	return project.Encode(w, s.Project())
}

// Generate runs o on a snapshot of the session.
func (s *Session) Generate(ctx context.Context, o *orchestrator.Orchestrator, presets resolve.Presets, emit orchestrator.EmitFunc) error {
	s.mu.Lock()
	p, st := s.project.Clone(), s.settings
	s.mu.Unlock()
	return o.Generate(ctx, p, st, presets, emit)
}
