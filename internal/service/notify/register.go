package notify

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the notification routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

// RegisterRoutes mounts /notifications on the authenticated router.
func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	g := protected.Group("/notifications")
	g.Get("/", r.list)
	g.Get("/unread-count", r.unreadCount)
	g.Put("/:id/read", r.markRead)
}

func (r *Registrar) list(c *fiber.Ctx) error {
	res, err := r.svc.List(c.UserContext(), response.UserID(c), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return response.OK(c, "Notifications retrieved", res)
}

func (r *Registrar) unreadCount(c *fiber.Ctx) error {
	n, err := r.svc.UnreadCount(c.UserContext(), response.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, "Unread count retrieved", fiber.Map{"count": n})
}

func (r *Registrar) markRead(c *fiber.Ctx) error {
	v, err := r.svc.MarkAsRead(c.UserContext(), response.UserID(c), response.ParamID(c, "id"))
	if err != nil {
		return err
	}
	return response.OK(c, "Notification marked as read", v)
}
