package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nadzzz/voicestudio/internal/emotion"
	"github.com/nadzzz/voicestudio/internal/remote"
)

func emotionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emotions",
		Short: "Manage the remote emotion preset library",
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Download the library export file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := reconciler().Export(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			successColour.Printf("Exported %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r := reconciler()
				if _, err := r.Load(cmd.Context()); err != nil {
					return err
				}
				printPresets(r.Presets())
				return nil
			},
		},
		exportCmd,
		&cobra.Command{
			Use:   "import FILE",
			Short: "Replace the library with the contents of an export file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				loaded, err := reconciler().Import(cmd.Context(), filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				successColour.Printf("Imported %d presets\n", len(loaded))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete one preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r := reconciler()
				if err := r.Delete(cmd.Context(), emotion.PersistedID(args[0])); err != nil {
					return err
				}
				successColour.Printf("Deleted %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every preset",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := reconciler().DeleteAll(cmd.Context()); err != nil {
					return err
				}
				successColour.Println("Emotion library cleared")
				return nil
			},
		},
		&cobra.Command{
			Use:   "push FILE",
			Short: "Create or update presets from a JSON or YAML file",
			Long: `Push merges presets from a local file into the remote library. Presets
whose name matches an existing one update it; the rest are created. The file
uses the same shapes the library accepts: a mapping of key to preset,
optionally wrapped in an "emotions" object.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return pushEmotions(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func reconciler() *emotion.Reconciler {
	return emotion.NewReconciler(remote.New(cfg.Remote))
}

func pushEmotions(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	incoming := emotion.Normalize(raw)
	if len(incoming) == 0 {
		return fmt.Errorf("%s: no presets found", path)
	}

	r := reconciler()
	if _, err := r.Load(ctx); err != nil {
		return err
	}
	existing := r.Library()

	created, updated := 0, 0
	for _, p := range incoming {
		if cur, ok := existing.Lookup(p.Name); ok {
			if err := r.Edit(cur.ID, func(e *emotion.Preset) {
				e.Exaggeration, e.CFGWeight, e.Temperature, e.Speed = p.Exaggeration, p.CFGWeight, p.Temperature, p.Speed
				if p.Category != "" {
					e.Category = p.Category
				}
			}); err != nil {
				return err
			}
			updated++
			continue
		}
		r.Add(p)
		created++
	}

	err = r.Save(ctx)
	var pf *emotion.PartialFailure
	if errors.As(err, &pf) {
		for _, f := range pf.Failures {
			errorColour.Printf("  %s %q: %v\n", f.Op, f.Name, f.Err)
		}
		return fmt.Errorf("%d of %d presets failed", len(pf.Failures), created+updated)
	}
	if err != nil {
		return err
	}
	successColour.Printf("Pushed %d presets (%d new, %d updated)\n", created+updated, created, updated)
	return nil
}

func printPresets(ps []emotion.Preset) {
	if len(ps) == 0 {
		warnColour.Println("No presets")
		return
	}
	titleColour.Printf("%-24s %-20s %6s %6s %6s %6s  %s\n", "ID", "NAME", "EXAG", "CFG", "TEMP", "SPEED", "CATEGORY")
	for _, p := range ps {
		fmt.Printf("%-24s %-20s %6.2f %6.2f %6.2f %6.2f  %s\n",
			truncate(p.ID.String(), 24), truncate(p.Name, 20),
			p.Exaggeration, p.CFGWeight, p.Temperature, p.Speed, p.Category)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
