package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/voicestudio/internal/health"
	"github.com/nadzzz/voicestudio/internal/remote"
	"github.com/nadzzz/voicestudio/internal/transport"
	grpctransport "github.com/nadzzz/voicestudio/internal/transport/grpc"
	httptransport "github.com/nadzzz/voicestudio/internal/transport/http"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC transports and the health server",
		RunE: func(*cobra.Command, []string) error {
			return serve()
		},
	}
}

func serve() error {
	slog.Info("voicestudio starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := remote.New(cfg.Remote)
	sel := buildSelector(cfg, client)
	defer func() {
		if err := sel.Close(); err != nil {
			slog.Error("closing backends", "error", err)
		}
	}()

	svc := &transport.Service{
		Synthesizer: sel,
		Backends:    sel,
		Voices:      buildVoices(ctx, cfg, client, 0),
		Settings:    cfg.Voice.Settings,
		Presets:     loadEmotions(ctx, client),
		Concurrency: cfg.Generation.Concurrency,
	}

	// Initialize enabled transports.
	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port, sel))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, svc))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, sel)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	successColour.Println("voicestudio ready")
	slog.Info("voicestudio ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("voicestudio stopped")
	return nil
}
