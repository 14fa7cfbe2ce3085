package chat

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the message routes into the HTTP server.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(_, protected fiber.Router) {
	protected.Get("/matches/:matchId/messages", r.history)
	protected.Get("/matches/:matchId/sync/:lastSyncTimestamp", r.sync)
	protected.Post("/messages/resend", r.resend)
}

// ParseTimestamp accepts RFC 3339 or milliseconds since the epoch.
// An empty value is the zero time.
func ParseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, svcErr.Validation("invalid timestamp %q", v)
	}
	return t.UTC(), nil
}

func (r *Registrar) history(c *fiber.Ctx) error {
	before, err := ParseTimestamp(c.Query("beforeTimestamp"))
	if err != nil {
		return err
	}
	var beforeID uint64
	if v := c.Query("beforeId"); v != "" {
		if beforeID, err = strconv.ParseUint(v, 10, 64); err != nil {
			return svcErr.Validation("invalid beforeId %q", v)
		}
	}
	h, err := r.svc.GetMessages(c.UserContext(), response.ParamID(c, "matchId"), response.UserID(c), before, beforeID, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return response.OK(c, "Messages retrieved", h)
}

func (r *Registrar) sync(c *fiber.Ctx) error {
	since, err := ParseTimestamp(c.Params("lastSyncTimestamp"))
	if err != nil {
		return err
	}
	res, err := r.svc.SyncMessages(c.UserContext(), response.ParamID(c, "matchId"), response.UserID(c), since)
	if err != nil {
		return err
	}
	return response.OK(c, "Messages synced", res)
}

func (r *Registrar) resend(c *fiber.Ctx) error {
	var req ResendRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.Validation("invalid request body")
	}
	res, err := r.svc.ResendFailedMessages(c.UserContext(), response.UserID(c), req)
	if err != nil {
		return err
	}
	return response.OK(c, "Messages processed", res)
}
