package matches

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the match transition routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	g := protected.Group("/matches")
	g.Get("/chat", r.chats)
	g.Get("/pending-count", r.pendingCount)
	g.Post("/request/:userId", r.request)
	g.Post("/:matchId/accept", r.accept)
	g.Post("/:matchId/reject", r.reject)
	g.Delete("/:matchId", r.unmatch)
}

func (r *Registrar) request(c *fiber.Ctx) error {
	v, err := r.svc.RequestMatch(c.UserContext(), response.UserID(c), response.ParamID(c, "userId"))
	if err != nil {
		return err
	}
	return response.Created(c, "Match request sent", v)
}

func (r *Registrar) accept(c *fiber.Ctx) error {
	res, err := r.svc.Accept(c.UserContext(), response.ParamID(c, "matchId"), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Match accepted", res)
}

func (r *Registrar) reject(c *fiber.Ctx) error {
	v, err := r.svc.Reject(c.UserContext(), response.ParamID(c, "matchId"), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Match rejected", v)
}

func (r *Registrar) unmatch(c *fiber.Ctx) error {
	if err := r.svc.Unmatch(c.UserContext(), response.ParamID(c, "matchId"), response.UserID(c)); err != nil {
		return err
	}
	return response.OK(c, "Match removed", nil)
}

func (r *Registrar) chats(c *fiber.Ctx) error {
	list, err := r.svc.ListChatMatches(c.UserContext(), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Chat matches retrieved", list)
}

func (r *Registrar) pendingCount(c *fiber.Ctx) error {
	n, err := r.svc.PendingCount(c.UserContext(), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Pending matches counted", fiber.Map{"count": n})
}
