// Package grpc implements the gRPC transport.
//
// It serves the standard grpc.health.v1 service. The synthesis service
// reports SERVING while at least one backend can still take requests, so
// orchestrators and load balancers can route around a node whose backends
// have all been demoted. Server reflection is enabled for grpcurl.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nadzzz/voicestudio/internal/transport"
)

// ServiceName is the health service name of the synthesis service.
const ServiceName = "voicestudio.synthesis"

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port     int
	backends transport.Backends
	interval time.Duration

	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int, backends transport.Backends) *Transport {
	return &Transport{
		port:     port,
		backends: backends,
		interval: 5 * time.Second,
		health:   health.NewServer(),
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server.
func (t *Transport) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.Serve(ctx, lis)
}

// Serve runs the server on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener) error {
	t.server = grpc.NewServer()
	healthpb.RegisterHealthServer(t.server, t.health)
	reflection.Register(t.server)

	t.refresh()
	go t.watch(ctx)

	slog.Info("grpc transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	return t.server.Serve(lis)
}

// watch mirrors backend availability into the health service.
func (t *Transport) watch(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Transport) refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if t.backends.Serviceable() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	t.health.SetServingStatus(ServiceName, status)
	t.health.SetServingStatus("", status)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
