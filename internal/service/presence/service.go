package presence

import (
	"context"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/notify"
)

// Status is what other users see about someone's connection.
type Status struct {
	UserID     uint64     `json:"userId"`
	IsLoggedIn bool       `json:"isLoggedin"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

// Counts is pushed to a client right after it announces itself.
type Counts struct {
	Notifications  int64 `json:"notifications"`
	PendingMatches int64 `json:"pendingMatches"`
}

// Service keeps the persisted presence row in step with the live hub.
type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	matches *repository.MatchRepository
	notify  *notify.Service
	now     func() time.Time
}

func NewService(appCtx *app.AppContext, notifications *notify.Service) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
		notify:  notifications,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Connect records socketID as the user's current connection.
func (s *Service) Connect(ctx context.Context, userID uint64, socketID string) error {
	at := s.now()
	if err := s.appCtx.Presence.Connect(ctx, userID, socketID, at); err != nil {
		s.appCtx.Logger.Error("presence connect failed", "user_id", userID, "err", err)
		return svcErr.Transient(err, "presence store")
	}
	if err := s.users.TouchActive(ctx, userID, at); err != nil {
		s.appCtx.Logger.Warn("touch last_active failed", "user_id", userID, "err", err)
	}
	return nil
}

// Disconnect marks the user offline unless a newer socket replaced socketID.
// An empty socketID marks the user offline unconditionally. Reports whether
// the row flipped.
func (s *Service) Disconnect(ctx context.Context, userID uint64, socketID string) (bool, error) {
	at := s.now()
	flipped, err := s.appCtx.Presence.Disconnect(ctx, userID, socketID, at)
	if err != nil {
		s.appCtx.Logger.Error("presence disconnect failed", "user_id", userID, "err", err)
		return false, svcErr.Transient(err, "presence store")
	}
	if flipped {
		if err := s.users.TouchActive(ctx, userID, at); err != nil {
			s.appCtx.Logger.Warn("touch last_active failed", "user_id", userID, "err", err)
		}
	}
	return flipped, nil
}

// Handover records to as the user's socket if from was the recorded one.
func (s *Service) Handover(ctx context.Context, userID uint64, from, to string) error {
	if _, err := s.appCtx.Presence.Handover(ctx, userID, from, to); err != nil {
		s.appCtx.Logger.Error("presence handover failed", "user_id", userID, "err", err)
		return svcErr.Transient(err, "presence store")
	}
	return nil
}

// Get returns the user's presence. Users that never connected are reported
// offline with their stored last activity.
func (s *Service) Get(ctx context.Context, userID uint64) (*Status, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	p, ok, err := s.appCtx.Presence.Get(ctx, userID)
	if err != nil {
		return nil, svcErr.Transient(err, "presence store")
	}
	out := &Status{UserID: userID, LastActive: u.LastActiveAt}
	if ok {
		out.IsLoggedIn = p.IsLoggedIn
		if !p.LastActive.IsZero() {
			la := p.LastActive
			out.LastActive = &la
		}
	}
	return out, nil
}

// Counts returns unread notifications and matches awaiting the user's answer.
func (s *Service) Counts(ctx context.Context, userID uint64) (*Counts, error) {
	unread, err := s.notify.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.matches.CountAwaiting(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &Counts{Notifications: unread, PendingMatches: pending}, nil
}
