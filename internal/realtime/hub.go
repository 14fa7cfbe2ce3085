package realtime

import (
	"log/slog"
	"sync"

	"github.com/oggyb/matchchat/internal/metrics"
)

// Hub is the live connection map: user id to that user's open clients.
// It is the per-user logical channel events are emitted on.
type Hub struct {
	mu    sync.RWMutex
	users map[uint64]map[*Client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		users: make(map[uint64]map[*Client]struct{}),
		log:   log,
	}
}

// Register adds c and returns how many clients the user now has.
func (h *Hub) Register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.userID] = set
	}
	if _, dup := set[c]; !dup {
		set[c] = struct{}{}
		metrics.Connections.Inc()
	}
	return len(set)
}

// Unregister removes and closes c and returns how many clients the user
// still has. The user's entry is dropped with its last client.
func (h *Hub) Unregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.userID]
	if !ok {
		return 0
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		c.Close()
		metrics.Connections.Dec()
	}
	if len(set) == 0 {
		delete(h.users, c.userID)
		return 0
	}
	return len(set)
}

// Emit implements Emitter.
func (h *Hub) Emit(userID uint64, event string, data any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.users[userID]
	if len(set) == 0 {
		return false
	}
	msg, err := encode(event, data)
	if err != nil {
		h.log.Error("encode event failed", "event", event, "err", err)
		return false
	}
	delivered := false
	for c := range set {
		if c.enqueue(msg) {
			delivered = true
		}
	}
	return delivered
}

// Online reports whether the user has at least one live client.
func (h *Hub) Online(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// SocketOf returns the socket id of one of the user's live clients.
func (h *Hub) SocketOf(userID uint64) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		return c.socketID, true
	}
	return "", false
}

// Users returns how many distinct users are connected.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}
