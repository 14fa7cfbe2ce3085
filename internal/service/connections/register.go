package connections

import (
	"github.com/gofiber/fiber/v2"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the connection routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	g := protected.Group("/connections")
	g.Get("/", r.list)
	g.Post("/:userId", r.send)
	g.Put("/:userId", r.respond)
	g.Delete("/:userId", r.remove)
}

func (r *Registrar) send(c *fiber.Ctx) error {
	v, err := r.svc.SendRequest(c.UserContext(), response.UserID(c), response.ParamID(c, "userId"))
	if err != nil {
		return err
	}
	return response.Created(c, "Connection request sent", v)
}

func (r *Registrar) respond(c *fiber.Ctx) error {
	var req RespondRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.Validation("invalid request body")
	}
	v, err := r.svc.Respond(c.UserContext(), response.UserID(c), response.ParamID(c, "userId"), req)
	if err != nil {
		return err
	}
	return response.OK(c, "Connection updated", v)
}

func (r *Registrar) list(c *fiber.Ctx) error {
	res, err := r.svc.List(c.UserContext(), response.UserID(c), c.Query("status"), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return response.OK(c, "Connections retrieved", res)
}

func (r *Registrar) remove(c *fiber.Ctx) error {
	if err := r.svc.Remove(c.UserContext(), response.UserID(c), response.ParamID(c, "userId")); err != nil {
		return err
	}
	return response.OK(c, "Connection removed", nil)
}
