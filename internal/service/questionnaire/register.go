package questionnaire

import (
	"github.com/gofiber/fiber/v2"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the questionnaire routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	g := protected.Group("/questions")
	g.Get("/", r.list)
	g.Post("/responses", r.submit)
	g.Get("/responses", r.mine)
}

func (r *Registrar) list(c *fiber.Ctx) error {
	cat, err := r.svc.GetQuestions(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, "Questions retrieved", cat)
}

func (r *Registrar) submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.Validation("invalid request body")
	}
	res, err := r.svc.SubmitResponses(c.UserContext(), response.UserID(c), req)
	if err != nil {
		return err
	}
	return response.OK(c, "Responses saved", res)
}

func (r *Registrar) mine(c *fiber.Ctx) error {
	res, err := r.svc.GetUserResponses(c.UserContext(), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Responses retrieved", res)
}
