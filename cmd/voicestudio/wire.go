package main

import (
	"context"
	"log/slog"

	"github.com/nadzzz/voicestudio/internal/config"
	"github.com/nadzzz/voicestudio/internal/emotion"
	"github.com/nadzzz/voicestudio/internal/remote"
	"github.com/nadzzz/voicestudio/internal/tts"
	"github.com/nadzzz/voicestudio/internal/tts/local"
	remotetts "github.com/nadzzz/voicestudio/internal/tts/remote"
	"github.com/nadzzz/voicestudio/internal/tts/selector"
	"github.com/nadzzz/voicestudio/internal/voice"
)

// buildSelector assembles the enabled backends in fallback order:
// accelerated, cpu, remote.
func buildSelector(cfg *config.Config, client *remote.Client) *selector.Selector {
	lang := cfg.Voice.Settings.Language
	var backends []tts.Backend
	if b := cfg.Backends.Accelerated; b.Enabled {
		backends = append(backends, local.New(local.Accelerated, local.AcceleratorCheck, local.PiperLoader(b.Piper, lang)))
	}
	if b := cfg.Backends.CPU; b.Enabled {
		backends = append(backends, local.New(local.CPU, nil, local.PiperLoader(b.Piper, lang)))
	}
	if cfg.Backends.Remote.Enabled {
		backends = append(backends, remotetts.New(client))
	}

	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	slog.Info("synthesis backends configured", "order", names)
	return selector.New(backends...)
}

// buildVoices returns the voice engine. With voice.catalog set the pool
// comes from the remote voice listing, falling back to the built-in pool.
func buildVoices(ctx context.Context, cfg *config.Config, client *remote.Client, seed uint64) *voice.Engine {
	pool := voice.DefaultPool()
	if cfg.Voice.Catalog {
		infos, err := client.Voices(ctx)
		switch {
		case err != nil:
			slog.Warn("voice catalog unavailable, using built-in pool", "error", err)
		case len(infos) == 0:
			slog.Warn("voice catalog is empty, using built-in pool")
		default:
			pool = voice.PoolFromCatalog(infos)
			slog.Info("voice pool loaded from catalog", "voices", len(pool.All))
		}
	}
	if seed == 0 {
		seed = cfg.Voice.Seed
	}
	return voice.NewEngine(pool, seed)
}

// loadEmotions loads the emotion library. A failed load leaves it empty.
func loadEmotions(ctx context.Context, client *remote.Client) *emotion.Reconciler {
	r := emotion.NewReconciler(client)
	if _, err := r.Load(ctx); err != nil {
		slog.Warn("emotion library unavailable, presets disabled", "error", err)
	}
	return r
}
