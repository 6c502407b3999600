package grpcserver

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"deliverySync/internal/auth"
	"deliverySync/internal/config"
	"deliverySync/internal/events"
	"deliverySync/internal/service"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// NewServer builds a grpc.Server with the auth interceptors, the Coordinator
// service and the standard health service.
func NewServer(secret string, coord CoordinatorServer) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(secret, healthCheckMethod)),
		grpc.StreamInterceptor(auth.NewStreamAuthInterceptor(secret, healthWatchMethod)),
	)
	RegisterCoordinatorServer(srv, coord)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// StartGRPC starts the gRPC server on the configured address and returns a shutdown function.
func StartGRPC(cfg *config.Config, svc *service.Service, hub *events.Hub, log *slog.Logger) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Plaintext; terminate TLS in front of the service.
	srv := NewServer(cfg.Auth.JWTSecret, &CoordinatorService{Svc: svc, Hub: hub, Log: log})

	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc serve", "error", err)
		}
	}()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
