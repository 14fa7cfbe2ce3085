package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchchat/internal/logger"
)

// fakeConn feeds ReadMessage from in and records writes.
type fakeConn struct {
	in chan []byte

	mu     sync.Mutex
	writes []written
	closed bool
}

type written struct {
	kind int
	data []byte
}

func newFakeConn() *fakeConn { return &fakeConn{in: make(chan []byte, 16)} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.in
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return websocket.TextMessage, msg, nil
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, written{kind: kind, data: data})
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) texts() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, w := range f.writes {
		if w.kind != websocket.TextMessage {
			continue
		}
		var env Envelope
		_ = json.Unmarshal(w.data, &env)
		out = append(out, env)
	}
	return out
}

// drain pulls queued events straight from the client's send channel.
func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			_ = json.Unmarshal(msg, &env)
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestHub_RegisterEmitUnregister(t *testing.T) {
	h := NewHub(logger.Discard())
	a1 := NewClient(newFakeConn(), 1, ClientOptions{}, logger.Discard())
	a2 := NewClient(newFakeConn(), 1, ClientOptions{}, logger.Discard())
	b := NewClient(newFakeConn(), 2, ClientOptions{}, logger.Discard())

	assert.Equal(t, 1, h.Register(a1))
	assert.Equal(t, 2, h.Register(a2))
	assert.Equal(t, 2, h.Register(a2), "double register is idempotent")
	h.Register(b)
	assert.Equal(t, 2, h.Users())
	assert.NotEqual(t, a1.SocketID(), a2.SocketID())

	assert.True(t, h.Emit(1, "counts", map[string]int{"notifications": 3}))
	assert.False(t, h.Emit(99, "counts", nil), "absent user is dropped")

	for _, c := range []*Client{a1, a2} {
		evs := drain(c)
		require.Len(t, evs, 1)
		assert.Equal(t, "counts", evs[0].Event)
		assert.JSONEq(t, `{"notifications":3}`, string(evs[0].Data))
	}
	assert.Empty(t, drain(b))

	assert.Equal(t, 1, h.Unregister(a1))
	assert.True(t, h.Online(1))
	assert.Equal(t, 0, h.Unregister(a2))
	assert.False(t, h.Online(1), "no room leaks after last disconnect")
	assert.Equal(t, 0, h.Unregister(a2))

	// closed clients refuse new events
	assert.False(t, a1.Send("x", nil))
}

func TestClient_SendQueueFullDrops(t *testing.T) {
	c := NewClient(newFakeConn(), 1, ClientOptions{SendBuffer: 1}, logger.Discard())
	assert.True(t, c.Send("a", nil))
	assert.False(t, c.Send("b", nil))
}

func TestClient_ReadPumpDispatchesAndRateLimits(t *testing.T) {
	conn := newFakeConn()
	c := NewClient(conn, 7, ClientOptions{EventsPerSecond: 0.001, Burst: 2}, logger.Discard())

	conn.in <- []byte(`{"event":"activeUser","data":{"userId":7}}`)
	conn.in <- []byte(`not json`)
	conn.in <- []byte(`{"event":"messageRead","data":{"messageId":1}}`)
	conn.in <- []byte(`{"event":"messageRead","data":{"messageId":2}}`)
	close(conn.in)

	var handled []string
	c.ReadPump(func(cl *Client, env Envelope) {
		assert.Same(t, c, cl)
		handled = append(handled, env.Event)
	})

	assert.Equal(t, []string{"activeUser", "messageRead"}, handled)

	evs := drain(c)
	require.Len(t, evs, 2)
	assert.Equal(t, "error", evs[0].Event)
	assert.Contains(t, string(evs[0].Data), "bad_request")
	assert.Contains(t, string(evs[1].Data), "rate_limited")
}

func TestClient_WritePumpFlushesThenCloses(t *testing.T) {
	conn := newFakeConn()
	c := NewClient(conn, 1, ClientOptions{}, logger.Discard())
	c.Send("newMessage", map[string]string{"text": "hi"})
	c.Close()

	c.WritePump()

	evs := conn.texts()
	require.Len(t, evs, 1)
	assert.Equal(t, "newMessage", evs[0].Event)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
	assert.Equal(t, websocket.CloseMessage, conn.writes[len(conn.writes)-1].kind)
}
