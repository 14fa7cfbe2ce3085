package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Conn is the subset of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type ClientOptions struct {
	EventsPerSecond float64
	Burst           int
	SendBuffer      int
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	conn     Conn
	userID   uint64
	socketID string
	limiter  *rate.Limiter
	log      *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(conn Conn, userID uint64, opts ClientOptions, log *slog.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.EventsPerSecond) * 2
	}
	socketID := uuid.NewString()
	return &Client{
		conn:     conn,
		userID:   userID,
		socketID: socketID,
		limiter:  rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.Burst),
		log:      log.With("user_id", userID, "socket_id", socketID),
		send:     make(chan []byte, opts.SendBuffer),
	}
}

func (c *Client) UserID() uint64   { return c.userID }
func (c *Client) SocketID() string { return c.socketID }

// Send queues an event for this connection only. A full queue drops the
// event rather than blocking the caller.
func (c *Client) Send(event string, data any) bool {
	msg, err := encode(event, data)
	if err != nil {
		c.log.Error("encode event failed", "event", event, "err", err)
		return false
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send queue full, dropping event")
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump decodes inbound envelopes and hands them to handle until the
// connection fails. Events over the rate limit get an error event back.
func (c *Client) ReadPump(handle func(*Client, Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.Send("error", ErrorPayload{Code: "bad_request", Message: "malformed envelope"})
			continue
		}

		if !c.limiter.Allow() {
			c.Send("error", ErrorPayload{Event: env.Event, Code: "rate_limited", Message: "too many events"})
			continue
		}

		handle(c, env)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
