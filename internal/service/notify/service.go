package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/cache"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/metrics"
	"github.com/oggyb/matchchat/internal/push"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/utils/pagination"
)

// EventNotification is the default realtime event for a new notification.
const EventNotification = "notification"

// Notice is one notification addressed to one or more users.
type Notice struct {
	Recipients []uint64
	Type       string
	Title      string
	Message    string
	Data       map[string]any
	// Event overrides EventNotification.
	Event string
	// Payload builds the emitted data for one recipient from its stored
	// notification. Nil emits the View itself.
	Payload func(userID uint64, v View) any
	// Push also sends a device notification to every recipient.
	Push bool
}

// View is the client representation of a notification.
type View struct {
	ID        uint64         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"isRead"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toView(n db.Notification) View {
	return View{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// ListResult is one page of notifications.
type ListResult struct {
	Notifications []View          `json:"notifications"`
	Pagination    pagination.Page `json:"pagination"`
}

// Service persists notifications and fans them out over realtime and push.
type Service struct {
	appCtx        *app.AppContext
	notifications *repository.NotificationRepository
	users         *repository.UserRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		notifications: repository.NewNotificationRepository(appCtx.DB),
		users:         repository.NewUserRepository(appCtx.DB),
	}
}

// Send persists one row per recipient and delivers it.
//
// Behavior:
//   - All rows are written in one batch; nothing is emitted when that fails.
//   - Unread counters of the recipients are invalidated.
//   - Each recipient gets exactly one event on every live connection;
//     offline users are skipped silently.
//   - Push failures are logged by the dispatcher and never returned.
//
// Example:
//
//	svc.Send(ctx, notify.Notice{Recipients: []uint64{2}, Type: db.NotificationMatch, Title: "New Match!"})
func (s *Service) Send(ctx context.Context, n Notice) ([]View, error) {
	recipients := unique(n.Recipients)
	if len(recipients) == 0 {
		return nil, nil
	}
	s.appCtx.Logger.Debug("Send notification", "type", n.Type, "recipients", recipients)

	rows := make([]db.Notification, len(recipients))
	for i, uid := range recipients {
		rows[i] = db.Notification{
			UserID:  uid,
			Type:    n.Type,
			Title:   n.Title,
			Message: n.Message,
			Data:    n.Data,
		}
	}
	if err := s.notifications.CreateBatch(ctx, rows); err != nil {
		s.appCtx.Logger.Error("CreateBatch failed", "err", err)
		return nil, svcErr.Map(err)
	}
	metrics.Notifications.WithLabelValues(n.Type).Add(float64(len(rows)))

	s.invalidate(ctx, recipients...)

	event := n.Event
	if event == "" {
		event = EventNotification
	}
	views := make([]View, len(rows))
	for i, row := range rows {
		views[i] = toView(row)
		var data any = views[i]
		if n.Payload != nil {
			data = n.Payload(row.UserID, views[i])
		}
		s.appCtx.Realtime.Emit(row.UserID, event, data)
	}

	if n.Push {
		s.push(ctx, recipients, push.Message{Title: n.Title, Body: n.Message, Data: stringify(n.Data)})
	}
	return views, nil
}

// PushOffline sends a device notification without persisting anything.
func (s *Service) PushOffline(ctx context.Context, userID uint64, title, body string, data map[string]string) {
	s.push(ctx, []uint64{userID}, push.Message{Title: title, Body: body, Data: data})
}

func (s *Service) push(ctx context.Context, userIDs []uint64, msg push.Message) {
	byUser, err := s.users.DeviceTokens(ctx, userIDs)
	if err != nil {
		s.appCtx.Logger.Warn("device token lookup failed", "err", err)
		return
	}
	var tokens []string
	for _, uid := range userIDs {
		tokens = append(tokens, byUser[uid]...)
	}
	if len(tokens) == 0 {
		return
	}
	s.appCtx.Outbound.Go("push", func(ctx context.Context) error {
		return s.appCtx.Push.Send(ctx, tokens, msg)
	})
}

// List returns one page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uint64, page, limit int) (*ListResult, error) {
	limit = pagination.Limit(limit, 20, 100)
	p, offset := pagination.NewPage(page, limit)

	rows, total, err := s.notifications.List(ctx, userID, offset, limit)
	if err != nil {
		s.appCtx.Logger.Error("List notifications failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	out := &ListResult{Notifications: make([]View, len(rows)), Pagination: p.WithTotal(total)}
	for i, row := range rows {
		out.Notifications[i] = toView(row)
	}
	return out, nil
}

// MarkAsRead marks the user's notification read. Marking an already read
// notification succeeds without changes; someone else's is NotFound.
func (s *Service) MarkAsRead(ctx context.Context, userID, id uint64) (*View, error) {
	changed, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	n, err := s.notifications.Get(ctx, id, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if changed {
		s.invalidate(ctx, userID)
	}
	v := toView(*n)
	return &v, nil
}

// UnreadCount is cache-first:
//  1. Reads notifications:unread:<id> from Redis, refreshing its TTL.
//  2. On miss or Redis failure counts in the database.
//  3. Stores the fresh count with a 1h TTL.
func (s *Service) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	key := cache.KeyForUnreadNotifications(userID)

	n, ok, err := s.appCtx.RedisCache.GetCount(ctx, key)
	if err != nil {
		s.appCtx.Logger.Warn("unread cache read failed", "user_id", userID, "err", err)
	}
	if ok {
		return n, nil
	}

	n, err = s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	if err := s.appCtx.RedisCache.SetCount(ctx, key, n); err != nil {
		s.appCtx.Logger.Warn("unread cache write failed", "user_id", userID, "err", err)
	}
	return n, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...uint64) {
	keys := make([]string, len(userIDs))
	for i, uid := range userIDs {
		keys[i] = cache.KeyForUnreadNotifications(uid)
	}
	if err := s.appCtx.RedisCache.Invalidate(ctx, keys...); err != nil {
		s.appCtx.Logger.Warn("unread cache invalidate failed", "err", err)
	}
}

func unique(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func stringify(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprint(v)
	}
	return out
}
