package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/config"
)

// NewGRPCServer builds the operations gRPC server with all provided services
func NewGRPCServer(registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer()

	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer
}

// StartGRPCServer listens on the configured address and serves until Stop.
func StartGRPCServer(cfg *config.Config, grpcServer *grpc.Server) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return grpcServer.Serve(lis)
}

// HealthRegistrar exposes grpc.health.v1.Health. The overall status follows
// the database and Redis checks.
type HealthRegistrar struct {
	appCtx *app.AppContext
	health *health.Server
}

func NewHealthRegistrar(appCtx *app.AppContext) *HealthRegistrar {
	return &HealthRegistrar{appCtx: appCtx, health: health.NewServer()}
}

func (h *HealthRegistrar) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Refresh runs the dependency checks and publishes the result.
func (h *HealthRegistrar) Refresh(ctx context.Context) bool {
	ok := Healthy(Check(ctx, h.appCtx))
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.appCtx.Config.Log.Component, status)
	return ok
}

// Shutdown reports NOT_SERVING to every watcher.
func (h *HealthRegistrar) Shutdown() {
	h.health.Shutdown()
}
