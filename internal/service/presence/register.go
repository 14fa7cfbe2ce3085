package presence

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the presence routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	protected.Get("/users/:userId/presence", r.get)
}

func (r *Registrar) get(c *fiber.Ctx) error {
	st, err := r.svc.Get(c.UserContext(), response.ParamID(c, "userId"))
	if err != nil {
		return err
	}
	return response.OK(c, "Presence retrieved", st)
}
