// Package orchestrator turns a project into an ordered sequence of
// synthesized lines.
//
// Lines are synthesized with bounded concurrency but always emitted in
// segment and dialogue order. Starting a new run cancels the one in flight:
// its backend calls are left to finish and their results are dropped.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/voicestudio/internal/innervoice"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/resolve"
	"github.com/nadzzz/voicestudio/internal/settings"
	"github.com/nadzzz/voicestudio/internal/tts"
)

// MaxConcurrency caps the number of lines synthesized at once.
const MaxConcurrency = 4

// ErrSuperseded is returned by a run that was cancelled by a newer one.
var ErrSuperseded = errors.New("generation superseded by a newer request")

// Status is the generation status of an Orchestrator.
type Status int

const (
	StatusIdle Status = iota
	StatusGenerating
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusGenerating:
		return "GENERATING"
	case StatusDone:
		return "DONE"
	case StatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusGenerating},
	StatusGenerating: {StatusGenerating, StatusDone, StatusFailed, StatusIdle},
	StatusDone:       {StatusGenerating},
	StatusFailed:     {StatusGenerating},
}

// Synthesizer produces audio for a resolved request. *selector.Selector
// implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// PostProcessor applies inner-voice processing to a clip.
type PostProcessor func(audio []byte, iv tts.InnerVoice) ([]byte, error)

// Line is one emitted result.
type Line struct {
	RunID     string `json:"run_id"`
	Segment   int    `json:"segment"`
	Index     int    `json:"index"`    // position within the segment
	Sequence  int    `json:"sequence"` // position across the project
	SpeakerID string `json:"speaker"`
	Text      string `json:"text"`

	Request     tts.Request `json:"request"`
	Audio       []byte      `json:"-"`
	ContentType string      `json:"content_type,omitempty"`
	Backend     string      `json:"backend,omitempty"`

	// Skipped is set for blank lines, which produce no audio.
	Skipped bool `json:"skipped,omitempty"`
}

// EmitFunc receives lines in source order. A non-nil error stops the run.
type EmitFunc func(Line) error

// Options configure an Orchestrator.
type Options struct {
	Concurrency int
	PostProcess PostProcessor
}

// Orchestrator runs generations against a Synthesizer. At most one run is
// active at a time.
type Orchestrator struct {
	synth       Synthesizer
	concurrency int
	post        PostProcessor

	mu      sync.Mutex
	status  Status
	runID   string
	cancel  context.CancelCauseFunc
	lastErr error
}

// New creates an Orchestrator. Concurrency is clamped to [1, MaxConcurrency]
// and a nil PostProcess defaults to innervoice.Apply.
func New(synth Synthesizer, opts Options) *Orchestrator {
	if opts.PostProcess == nil {
		opts.PostProcess = innervoice.Apply
	}
	return &Orchestrator{
		synth:       synth,
		concurrency: min(max(opts.Concurrency, 1), MaxConcurrency),
		post:        opts.PostProcess,
	}
}

// Status returns the current status and the id of the latest run.
func (o *Orchestrator) Status() (Status, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status, o.runID
}

// Err returns the error that failed the latest run, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Cancel stops the active run, if any. Its Generate call returns
// ErrSuperseded.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel(ErrSuperseded)
		o.cancel = nil
		o.transition(StatusIdle)
	}
}

type job struct {
	line Line
	req  tts.Request
}

type outcome struct {
	line Line
	err  error
}

// Generate synthesizes every line of p and passes the results to emit in
// source order. p and s are snapshotted before Generate returns control to
// the workers, so later edits never reach this run. presets may be nil.
//
// Generate blocks until the run is done, failed, cancelled or superseded.
func (o *Orchestrator) Generate(ctx context.Context, p *project.Project, s settings.Settings, presets resolve.Presets, emit EmitFunc) error {
	if p == nil || !p.HasText() {
		return &project.ValidationError{Field: "text", Reason: "nothing to generate"}
	}
	jobs := plan(p.Clone(), s, presets)

	runCtx, runID, done := o.start(ctx)
	logger := slog.With("run_id", runID)
	logger.Info("generation started", "lines", len(jobs), "concurrency", o.concurrency)
	start := time.Now()

	err := o.run(runCtx, logger, runID, jobs, emit)
	o.finish(runID, err)
	done()

	switch {
	case errors.Is(err, ErrSuperseded):
		logger.Info("generation superseded")
	case err != nil:
		logger.Error("generation failed", "error", err)
	default:
		logger.Info("generation complete", "lines", len(jobs), "duration", time.Since(start).Round(time.Millisecond))
	}
	return err
}

// GenerateText synthesizes a single text with the narrator's voice, or with
// voice when it is non-empty.
func (o *Orchestrator) GenerateText(ctx context.Context, text, voice string, s settings.Settings, presets resolve.Presets) (Line, error) {
	var out Line
	err := o.Generate(ctx, project.Single(text, voice), s, presets, func(l Line) error {
		out = l
		return nil
	})
	return out, err
}

// plan resolves every line up front.
func plan(p *project.Project, s settings.Settings, presets resolve.Presets) []job {
	single := p.IsSingleMode()
	jobs := make([]job, 0, p.DialogueCount())
	for _, seg := range p.Segments {
		for i, d := range seg.Dialogues {
			c := p.Speaker(d.SpeakerID)
			line := Line{
				Segment:   seg.ID,
				Index:     i,
				Sequence:  len(jobs),
				SpeakerID: c.ID,
				Text:      d.Text,
				Skipped:   strings.TrimSpace(d.Text) == "",
			}
			req := resolve.Resolve(c, d, s, presets, single)
			line.Request = req
			jobs = append(jobs, job{line: line, req: req})
		}
	}
	return jobs
}

// start supersedes the active run and registers a new one.
func (o *Orchestrator) start(ctx context.Context) (context.Context, string, context.CancelFunc) {
	runCtx, cancel := context.WithCancelCause(ctx)
	id := uuid.NewString()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel(ErrSuperseded)
	}
	o.cancel = cancel
	o.runID = id
	o.lastErr = nil
	o.transition(StatusGenerating)
	o.mu.Unlock()

	return runCtx, id, func() { cancel(context.Canceled) }
}

// finish records the outcome if runID is still the latest run.
func (o *Orchestrator) finish(runID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runID != runID {
		return
	}
	o.cancel = nil
	switch {
	case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		// A no-op after Cancel. A run whose caller superseded it before it
		// started still needs the move.
		o.transition(StatusIdle)
	case err != nil:
		o.lastErr = err
		o.transition(StatusFailed)
	default:
		o.transition(StatusDone)
	}
}

// transition applies a status change if it is valid. Callers hold o.mu.
func (o *Orchestrator) transition(to Status) {
	if slices.Contains(validTransitions[o.status], to) {
		o.status = to
	}
}

// run fans the jobs out to at most o.concurrency workers and emits their
// results in order. Every slot receives exactly one outcome.
func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, runID string, jobs []job, emit EmitFunc) error {
	slots := make([]chan outcome, len(jobs))
	for i := range slots {
		slots[i] = make(chan outcome, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	go func() {
		for i, j := range jobs {
			if gctx.Err() != nil {
				slots[i] <- outcome{err: context.Cause(gctx)}
				continue
			}
			g.Go(func() error {
				// Admission may have waited on the limit past a supersede.
				if ctx.Err() != nil {
					slots[i] <- outcome{err: cause(ctx)}
					return nil
				}
				out := o.synthesize(ctx, logger, j)
				slots[i] <- out
				return out.err
			})
		}
	}()

	for i := range slots {
		var out outcome
		select {
		case out = <-slots[i]:
		case <-ctx.Done():
			return cause(ctx)
		}
		// A result that raced with supersession is dropped.
		if ctx.Err() != nil {
			return cause(ctx)
		}
		if out.err != nil {
			return out.err
		}
		out.line.RunID = runID
		if err := emit(out.line); err != nil {
			return err
		}
	}
	return nil
}

// synthesize runs one job under the run context. A failing sibling does not
// reach it, so a line emitted before the failure is still post-processed.
// The backend call is detached from cancellation: a superseded call
// completes and its result is discarded by the emitter.
func (o *Orchestrator) synthesize(ctx context.Context, logger *slog.Logger, j job) outcome {
	line := j.line
	if line.Skipped {
		return outcome{line: line}
	}

	res, err := o.synth.Synthesize(context.WithoutCancel(ctx), j.req)
	if err != nil {
		return outcome{err: fmt.Errorf("segment %d line %d: %w", line.Segment, line.Index+1, err)}
	}
	line.Audio = res.Audio
	line.ContentType = res.ContentType
	line.Backend = res.Backend

	if j.req.InnerVoice != nil && ctx.Err() == nil {
		processed, err := o.post(res.Audio, *j.req.InnerVoice)
		if err != nil {
			logger.Warn("inner voice skipped", "segment", line.Segment, "line", line.Index+1, "error", err)
		} else {
			line.Audio = processed
			line.ContentType = "audio/wav"
		}
	}
	logger.Debug("line synthesized", "segment", line.Segment, "line", line.Index+1, "backend", line.Backend, "bytes", len(line.Audio))
	return outcome{line: line}
}

func cause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}
