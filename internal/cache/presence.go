package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence is the persisted view of a user's real-time connection.
// There is one hash per user and it is overwritten, never deleted.
type Presence struct {
	UserID     uint64    `json:"userId"`
	SocketID   string    `json:"socketId"`
	IsLoggedIn bool      `json:"isLoggedin"`
	LastActive time.Time `json:"lastActive"`
}

// disconnectScript flips is_loggedin only when the socket being closed is the
// one currently recorded. A late close from a replaced socket is ignored.
var disconnectScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'socket_id')
if ARGV[1] == '' or cur == ARGV[1] then
  redis.call('HSET', KEYS[1], 'socket_id', '', 'is_loggedin', '0', 'last_active', ARGV[2])
  return 1
end
return 0
`)

// handoverScript points the row at ARGV[2] when ARGV[1] is the recorded
// socket. Used when a user closes one of several live sockets.
var handoverScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'socket_id')
if cur == ARGV[1] then
  redis.call('HSET', KEYS[1], 'socket_id', ARGV[2])
  return 1
end
return 0
`)

type PresenceStore struct {
	client *redis.Client
}

func NewPresenceStore(c *RedisCache) *PresenceStore {
	return &PresenceStore{client: c.Client}
}

func presenceKey(userID uint64) string {
	return fmt.Sprintf("presence:%d", userID)
}

// Connect upserts the user's presence row as logged in on socketID.
func (p *PresenceStore) Connect(ctx context.Context, userID uint64, socketID string, at time.Time) error {
	return p.client.HSet(ctx, presenceKey(userID),
		"socket_id", socketID,
		"is_loggedin", "1",
		"last_active", strconv.FormatInt(at.UnixMilli(), 10),
	).Err()
}

// Disconnect marks the user offline if socketID is still the recorded socket.
// An empty socketID forces the flip. Reports whether the row changed.
func (p *PresenceStore) Disconnect(ctx context.Context, userID uint64, socketID string, at time.Time) (bool, error) {
	n, err := disconnectScript.Run(ctx, p.client,
		[]string{presenceKey(userID)},
		socketID, strconv.FormatInt(at.UnixMilli(), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Handover moves the recorded socket from one live socket to another.
// Reports false when from was not the recorded socket.
func (p *PresenceStore) Handover(ctx context.Context, userID uint64, from, to string) (bool, error) {
	n, err := handoverScript.Run(ctx, p.client, []string{presenceKey(userID)}, from, to).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get returns the user's presence row; ok is false when none was ever written.
func (p *PresenceStore) Get(ctx context.Context, userID uint64) (Presence, bool, error) {
	vals, err := p.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return Presence{}, false, err
	}
	if len(vals) == 0 {
		return Presence{UserID: userID}, false, nil
	}
	out := Presence{
		UserID:     userID,
		SocketID:   vals["socket_id"],
		IsLoggedIn: vals["is_loggedin"] == "1",
	}
	if ms, err := strconv.ParseInt(vals["last_active"], 10, 64); err == nil {
		out.LastActive = time.UnixMilli(ms).UTC()
	}
	return out, true, nil
}
