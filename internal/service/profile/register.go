package profile

import (
	"github.com/gofiber/fiber/v2"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the profile routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	g := protected.Group("/user")
	g.Get("/profile", r.get)
	g.Put("/profile", r.update)
	g.Post("/devices", r.device)
	protected.Get("/personality", r.personalities)
}

func (r *Registrar) personalities(c *fiber.Ctx) error {
	traits, err := r.svc.Personalities(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, "Personalities retrieved", traits)
}

func (r *Registrar) get(c *fiber.Ctx) error {
	p, err := r.svc.GetProfile(c.UserContext(), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Profile retrieved", p)
}

func (r *Registrar) update(c *fiber.Ctx) error {
	var patch Patch
	if err := c.BodyParser(&patch); err != nil {
		return svcErr.Validation("invalid request body")
	}
	p, err := r.svc.UpdateProfile(c.UserContext(), response.UserID(c), patch)
	if err != nil {
		return err
	}
	return response.OK(c, "Profile updated", p)
}

func (r *Registrar) device(c *fiber.Ctx) error {
	var req DeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.Validation("invalid request body")
	}
	if err := r.svc.RegisterDevice(c.UserContext(), response.UserID(c), req); err != nil {
		return err
	}
	return response.Created(c, "Device registered", nil)
}
