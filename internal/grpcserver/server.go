package grpcserver

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/caseportal/messaging/pkg/log"
)

// ServiceName is the health service name the gateway reports under.
const ServiceName = "caseportal.messaging.Gateway"

// Server is the gateway's gRPC endpoint. It only serves health checks.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

// New listens on addr. Both the overall and the gateway service status
// start as SERVING.
func New(addr string, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{grpc: s, health: hs, lis: lis}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Serve blocks until the server stops.
func (s *Server) Serve() error {
	l := log.L()
	l.Info().Str("address", s.Addr()).Msg("grpc server listening")
	return s.grpc.Serve(s.lis)
}

// WatchHub flips the gateway status to NOT_SERVING once done closes.
func (s *Server) WatchHub(done <-chan struct{}) {
	go func() {
		<-done
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}()
}

// Shutdown reports NOT_SERVING and stops gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
