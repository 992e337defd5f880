package grpc

import (
	"crypto/tls"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health check service reported by the reporter
const ServiceName = "noise.Reporter"

// HealthServer exposes grpc.health.v1 for the reporter loop
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a gRPC server reporting NOT_SERVING until told otherwise.
// tlsCfg may be nil for plaintext.
func NewHealthServer(tlsCfg *tls.Config) *HealthServer {
	var opts []grpc.ServerOption
	if tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Enable gRPC reflection for grpcurl testing
	reflection.Register(srv)

	h := &HealthServer{server: srv, health: hs}
	h.SetServing(false)
	return h
}

// SetServing flips both the overall and the reporter status
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)

	log.Debug().Str("status", status.String()).Msg("health status changed")
}

// Serve blocks accepting connections on lis
func (h *HealthServer) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return h.server.Serve(lis)
}

// Stop closes all listeners and connections
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.Stop()
}
