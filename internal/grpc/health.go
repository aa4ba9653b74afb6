package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mtr002/Job-Runner/internal/logger"
)

// HealthServer exposes grpc.health.v1 for the runner process. The overall
// status ("") and the named service always move together.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	service string
}

func NewHealthServer(service string) *HealthServer {
	s := &HealthServer{
		server:  grpc.NewServer(),
		health:  health.NewServer(),
		service: service,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Watch polls serving every interval and mirrors it until ctx is done, then
// reports NOT_SERVING.
func (s *HealthServer) Watch(ctx context.Context, serving func() bool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := serving()
	s.SetServing(last)
	for {
		select {
		case <-ctx.Done():
			s.SetServing(false)
			return
		case <-ticker.C:
			if now := serving(); now != last {
				logger.Logger.Info().Bool("serving", now).Msg("Runner health changed")
				s.SetServing(now)
				last = now
			}
		}
	}
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Start listens on addr and serves until Stop
func (s *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logger.Logger.Info().Str("addr", addr).Msg("Starting gRPC health server")
	return s.Serve(lis)
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
