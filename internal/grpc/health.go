// Package grpc serves the gRPC health service used by orchestrators.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-realtime/internal/observability"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// HealthServer wraps a grpc.Server exposing grpc.health.v1.Health.
type HealthServer struct {
	srv     *grpc.Server
	health  *health.Server
	service string
	log     *slog.Logger
}

// NewHealthServer registers the health service for service and the empty name.
func NewHealthServer(service string, log *slog.Logger) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &HealthServer{srv: srv, health: hs, service: service, log: log}
	s.SetServing(true)
	return s
}

// SetServing flips the reported status of both names.
func (s *HealthServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Watch runs check every interval until ctx is done and mirrors its result.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration, check CheckFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			err := check(checkCtx)
			cancel()
			if ok := err == nil; ok != healthy {
				healthy = ok
				s.log.Warn("health status changed", "serving", ok, "err", err)
				s.SetServing(ok)
			}
		}
	}
}

// Serve blocks serving lis.
func (s *HealthServer) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Shutdown reports NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
