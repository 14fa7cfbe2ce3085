package socket

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/oggyb/matchchat/internal/realtime"
)

const localUserID = "ws_user_id"

// Registrar mounts the websocket endpoint.
type Registrar struct {
	gw *Gateway
}

func NewRegistrar(gw *Gateway) *Registrar {
	return &Registrar{gw: gw}
}

// Mount serves GET /ws?token=<jwt> on r. The token may also come as a
// bearer Authorization header.
func (r *Registrar) Mount(router fiber.Router) {
	router.Use("/ws", r.authenticate)
	router.Get("/ws", websocket.New(r.serve))
}

func (r *Registrar) authenticate(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token = c.Get(fiber.HeaderAuthorization)
	}
	uid, err := r.gw.appCtx.Tokens.Parse(token)
	if err != nil {
		r.gw.appCtx.Logger.Debug("websocket auth rejected", "err", err)
		return fiber.ErrUnauthorized
	}
	c.Locals(localUserID, uid)
	return c.Next()
}

func (r *Registrar) serve(conn *websocket.Conn) {
	uid, _ := conn.Locals(localUserID).(uint64)
	cfg := r.gw.appCtx.Config.Realtime
	client := realtime.NewClient(conn, uid, realtime.ClientOptions{
		EventsPerSecond: cfg.EventsPerSecond,
		Burst:           cfg.Burst,
		SendBuffer:      cfg.SendBuffer,
	}, r.gw.appCtx.Logger)
	r.gw.Serve(context.Background(), client)
}
