package matcher

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the match search route into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	protected.Get("/matches", r.find)
}

func (r *Registrar) find(c *fiber.Ctx) error {
	res, err := r.svc.FindMatches(c.UserContext(), response.UserID(c), c.Query("cursor"), c.QueryInt("limit", defaultLimit))
	if err != nil {
		return err
	}
	return response.OK(c, "Matches found", res)
}
