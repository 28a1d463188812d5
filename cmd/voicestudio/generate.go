package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/voicestudio/internal/orchestrator"
	"github.com/nadzzz/voicestudio/internal/project"
	"github.com/nadzzz/voicestudio/internal/remote"
	"github.com/nadzzz/voicestudio/internal/studio"
)

type generateOptions struct {
	text        string
	voice       string
	out         string
	seed        uint64
	concurrency int
}

func generateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate [project-file]",
		Short: "Generate audio for a project file or a single text",
		Long: `Generate synthesizes every dialogue line of a project (JSON or YAML import
format) and writes one WAV file per line, named segNN_lineNN.wav, in playback
order. With --text a single utterance is spoken by the narrator instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.text == "" {
				return errors.New("a project file or --text is required")
			}
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return generate(cmd.Context(), path, opts)
		},
	}
	cmd.Flags().StringVar(&opts.text, "text", "", "single text to speak")
	cmd.Flags().StringVar(&opts.voice, "voice", "", "narrator voice for --text")
	cmd.Flags().StringVarP(&opts.out, "out", "o", ".", "output directory")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "voice assignment seed (0 uses the configured seed)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "lines synthesized in parallel (0 uses the configured value)")
	return cmd
}

func generate(parent context.Context, path string, opts generateOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := remote.New(cfg.Remote)
	sel := buildSelector(cfg, client)
	defer sel.Close()

	sess := studio.New(buildVoices(ctx, cfg, client, opts.seed), cfg.Voice.Settings)
	if err := loadSession(sess, path, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	concurrency := cfg.Generation.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}
	orch := orchestrator.New(sel, orchestrator.Options{Concurrency: concurrency})
	presets := loadEmotions(ctx, client)

	p := sess.Project()
	titleColour.Printf("Generating %d lines across %d segments\n", p.DialogueCount(), len(p.Segments))

	written := 0
	err := sess.Generate(ctx, orch, presets.Library(), func(l orchestrator.Line) error {
		name := fmt.Sprintf("seg%02d_line%02d.wav", l.Segment, l.Index+1)
		if l.Skipped {
			warnColour.Printf("  skip  %s (blank line)\n", name)
			return nil
		}
		if err := os.WriteFile(filepath.Join(opts.out, name), l.Audio, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		written++
		infoColour.Printf("  %-5s %s  %s via %s\n", "ok", name, l.Request.Voice, l.Backend)
		return nil
	})
	if err != nil {
		return err
	}

	successColour.Printf("Wrote %d files to %s\n", written, opts.out)
	for _, st := range sel.Snapshot() {
		fmt.Printf("  backend %-12s %s\n", st.Name, st.State)
	}
	return nil
}

// loadSession fills the session from a project file or the --text flag.
func loadSession(sess *studio.Session, path string, opts generateOptions) error {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return sess.Import(f, project.FormatFromPath(path))
	}
	return sess.Edit(func(p *project.Project) error {
		// A blank emotion lets the single-mode emotion apply.
		if err := p.UpdateDialogue(1, 0, func(d *project.Dialogue) {
			d.Text = opts.text
			d.Emotion = ""
		}); err != nil {
			return err
		}
		if opts.voice == "" {
			return nil
		}
		return p.UpdateCharacter(project.NarratorID, func(c *project.Character) { c.Voice = opts.voice })
	})
}
