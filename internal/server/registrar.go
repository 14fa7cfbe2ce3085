package server

import (
	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc"
)

// Registrar is a common interface for all gRPC service registrars
type Registrar interface {
	Register(s *grpc.Server)
}

// RouteRegistrar is implemented by every service that serves HTTP.
// public is mounted at /api/v1/auth; protected at /api/v1 behind bearer auth.
type RouteRegistrar interface {
	RegisterRoutes(public, protected fiber.Router)
}
