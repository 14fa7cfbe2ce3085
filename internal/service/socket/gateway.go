// Package socket is the websocket front of the realtime channel: it binds a
// connection to its authenticated user and routes inbound events to the
// match, chat and presence services.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/realtime"
	"github.com/oggyb/matchchat/internal/service/chat"
	"github.com/oggyb/matchchat/internal/service/matches"
	"github.com/oggyb/matchchat/internal/service/presence"
)

// Inbound events.
const (
	EventActiveUser       = "activeUser"
	EventAcceptMatch      = "acceptMatch"
	EventSendMessage      = "sendMessage"
	EventMessageRead      = "messageRead"
	EventMessageDelivered = "messageDelivered"
	EventDisconnect       = "disconnect"
	EventDisconnected     = "disconnected"
)

// Outbound events owned by the gateway.
const (
	EventCounts = "counts"
	EventError  = "error"
)

// handlerTimeout bounds the work one inbound event may do.
const handlerTimeout = 10 * time.Second

// presenceStripes serialises hub membership and presence writes per user.
const presenceStripes = 64

type userPayload struct {
	UserID uint64 `json:"userId"`
}

type acceptPayload struct {
	MatchID uint64 `json:"matchId"`
	UserID  uint64 `json:"userId"`
}

type sendPayload struct {
	MatchID         uint64 `json:"matchId"`
	Text            string `json:"text"`
	SenderID        uint64 `json:"senderId"`
	ClientMessageID string `json:"clientMessageId"`
}

type messagePayload struct {
	MessageID uint64 `json:"messageId"`
	UserID    uint64 `json:"userId"`
}

var errIdentity = errors.New("payload user does not match the connection")

// Gateway dispatches inbound events of every connected client.
type Gateway struct {
	appCtx   *app.AppContext
	hub      *realtime.Hub
	presence *presence.Service
	matches  *matches.Service
	chat     *chat.Service

	stripes [presenceStripes]sync.Mutex
}

func NewGateway(appCtx *app.AppContext, hub *realtime.Hub, p *presence.Service, m *matches.Service, c *chat.Service) *Gateway {
	return &Gateway{appCtx: appCtx, hub: hub, presence: p, matches: m, chat: c}
}

// Serve runs one connection until it closes.
//
// Behavior:
//   - The client joins the hub and the presence row points at its socket.
//   - Inbound events are handled in order on this goroutine; writes happen
//     on a separate pump.
//   - On exit the client leaves the hub. The last connection flips presence
//     offline; otherwise the row is handed to a remaining socket.
func (g *Gateway) Serve(ctx context.Context, c *realtime.Client) {
	log := g.appCtx.Logger.With("user_id", c.UserID(), "socket_id", c.SocketID())

	mu := g.stripe(c.UserID())
	mu.Lock()
	log.Info("websocket connected", "connections", g.hub.Register(c))
	if err := g.presence.Connect(ctx, c.UserID(), c.SocketID()); err != nil {
		log.Warn("presence connect failed", "err", err)
	}
	mu.Unlock()

	go c.WritePump()
	c.ReadPump(g.Handle)

	mu.Lock()
	defer mu.Unlock()
	left := g.hub.Unregister(c)
	if next, ok := g.hub.SocketOf(c.UserID()); ok {
		if err := g.presence.Handover(ctx, c.UserID(), c.SocketID(), next); err != nil {
			log.Warn("presence handover failed", "err", err)
		}
	} else if _, err := g.presence.Disconnect(ctx, c.UserID(), ""); err != nil {
		log.Warn("presence disconnect failed", "err", err)
	}
	log.Info("websocket disconnected", "connections", left)
}

func (g *Gateway) stripe(userID uint64) *sync.Mutex {
	return &g.stripes[userID%presenceStripes]
}

// Handle processes one inbound envelope from c.
func (g *Gateway) Handle(c *realtime.Client, env realtime.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case EventActiveUser:
		err = g.activeUser(ctx, c, env.Data)
	case EventAcceptMatch:
		err = g.acceptMatch(ctx, c, env.Data)
	case EventSendMessage:
		err = g.sendMessage(ctx, c, env.Data)
	case EventMessageRead:
		err = g.messageRead(ctx, c, env.Data)
	case EventMessageDelivered:
		err = g.messageDelivered(ctx, c, env.Data)
	case EventDisconnect, EventDisconnected:
		// closing the queue ends the write pump, which closes the socket
		// and with it the read loop
		c.Close()
	default:
		c.Send(EventError, realtime.ErrorPayload{Event: env.Event, Code: "unknown_event", Message: "unknown event"})
		return
	}
	if err != nil {
		g.fail(c, env.Event, err)
	}
}

func (g *Gateway) fail(c *realtime.Client, event string, err error) {
	code := "internal"
	switch {
	case errors.Is(err, errIdentity):
		c.Send(EventError, realtime.ErrorPayload{Event: event, Code: "forbidden", Message: err.Error()})
		return
	case errors.Is(err, svcErr.ErrValidation):
		code = "validation"
	case errors.Is(err, svcErr.ErrNotFound):
		code = "not_found"
	case errors.Is(err, svcErr.ErrConflict):
		code = "conflict"
	case errors.Is(err, svcErr.ErrRateLimited):
		code = "rate_limited"
	default:
		g.appCtx.Logger.Error("socket event failed", "event", event, "user_id", c.UserID(), "err", err)
	}
	c.Send(EventError, realtime.ErrorPayload{Event: event, Code: code, Message: svcErr.PublicMessage(err)})
}

// decode unmarshals data and checks that any user id it names is the
// connection's own.
func decode[T any](c *realtime.Client, data json.RawMessage, claimed func(T) uint64) (T, error) {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return v, svcErr.Validation("malformed payload")
		}
	}
	if id := claimed(v); id != 0 && id != c.UserID() {
		return v, errIdentity
	}
	return v, nil
}

func (g *Gateway) activeUser(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	if _, err := decode(c, data, func(p userPayload) uint64 { return p.UserID }); err != nil {
		return err
	}
	mu := g.stripe(c.UserID())
	mu.Lock()
	err := g.presence.Connect(ctx, c.UserID(), c.SocketID())
	mu.Unlock()
	if err != nil {
		return err
	}
	counts, err := g.presence.Counts(ctx, c.UserID())
	if err != nil {
		return err
	}
	c.Send(EventCounts, counts)
	return nil
}

func (g *Gateway) acceptMatch(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	p, err := decode(c, data, func(p acceptPayload) uint64 { return p.UserID })
	if err != nil {
		return err
	}
	_, err = g.matches.Accept(ctx, p.MatchID, c.UserID())
	return err
}

func (g *Gateway) sendMessage(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	p, err := decode(c, data, func(p sendPayload) uint64 { return p.SenderID })
	if err != nil {
		return err
	}
	res, err := g.chat.SendMessage(ctx, c.UserID(), chat.SendRequest{
		MatchID:         p.MatchID,
		Text:            p.Text,
		ClientMessageID: p.ClientMessageID,
	})
	if err != nil {
		c.Send(chat.EventMessageStatus, chat.StatusPayload{
			ClientMessageID: p.ClientMessageID,
			MatchID:         p.MatchID,
			Status:          db.MessageFailed,
			Error:           svcErr.PublicMessage(err),
		})
		return nil
	}
	ts := res.Message.CreatedAt
	c.Send(chat.EventMessageStatus, chat.StatusPayload{
		MessageID:       res.Message.ID,
		ClientMessageID: res.Message.ClientMessageID,
		MatchID:         res.Message.MatchID,
		Status:          res.Message.Status,
		Timestamp:       &ts,
	})
	return nil
}

func (g *Gateway) messageRead(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	p, err := decode(c, data, func(p messagePayload) uint64 { return p.UserID })
	if err != nil {
		return err
	}
	_, err = g.chat.MarkRead(ctx, c.UserID(), p.MessageID)
	return err
}

func (g *Gateway) messageDelivered(ctx context.Context, c *realtime.Client, data json.RawMessage) error {
	p, err := decode(c, data, func(p messagePayload) uint64 { return p.UserID })
	if err != nil {
		return err
	}
	_, err = g.chat.MarkDelivered(ctx, c.UserID(), p.MessageID)
	return err
}
