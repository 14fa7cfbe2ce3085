package connections

import (
	"context"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/service/profile"
	"github.com/oggyb/matchchat/internal/utils/pagination"
	"github.com/oggyb/matchchat/internal/utils/validation"
)

// Respond actions.
const (
	ActionAccept = "accept"
	ActionBlock  = "block"
)

// View is a connection seen from one side.
type View struct {
	User        profile.Summary `json:"user"`
	Status      string          `json:"status"`
	InitiatorID uint64          `json:"initiatorId"`
	Incoming    bool            `json:"incoming"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ListResult struct {
	Connections []View          `json:"connections"`
	Pagination  pagination.Page `json:"pagination"`
}

type RespondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept block"`
}

// Service manages user-to-user connection requests. Both sides share one
// row, so their views can never disagree.
type Service struct {
	appCtx      *app.AppContext
	connections *repository.ConnectionRepository
	users       *repository.UserRepository
	notify      *notify.Service
}

func NewService(appCtx *app.AppContext, notifications *notify.Service) *Service {
	return &Service{
		appCtx:      appCtx,
		connections: repository.NewConnectionRepository(appCtx.DB),
		users:       repository.NewUserRepository(appCtx.DB),
		notify:      notifications,
	}
}

func view(c *db.Connection, self uint64, peer db.User) View {
	return View{
		User:        profile.Summarize(peer),
		Status:      c.Status,
		InitiatorID: c.InitiatorID,
		Incoming:    c.InitiatorID != self,
		UpdatedAt:   c.UpdatedAt,
	}
}

// SendRequest creates a pending connection from actor to peer.
func (s *Service) SendRequest(ctx context.Context, actor, peer uint64) (*View, error) {
	s.appCtx.Logger.Debug("SendRequest called", "actor", actor, "peer", peer)

	if actor == peer {
		return nil, svcErr.Validation("cannot connect with yourself")
	}
	users, err := s.users.GetMany(ctx, []uint64{actor, peer})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	target, ok := users[peer]
	if !ok {
		return nil, svcErr.NotFound("user not found")
	}

	created, err := s.connections.Create(ctx, actor, peer)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !created {
		return nil, svcErr.Conflict("a connection with this user already exists")
	}
	c, err := s.connections.Get(ctx, actor, peer)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	_, err = s.notify.Send(ctx, notify.Notice{
		Recipients: []uint64{peer},
		Type:       db.NotificationSystem,
		Title:      "New Connection Request",
		Message:    users[actor].Name + " wants to connect with you",
		Data:       map[string]any{"userId": actor},
	})
	if err != nil {
		s.appCtx.Logger.Error("connection request notification failed", "actor", actor, "err", err)
	}

	v := view(c, actor, target)
	return &v, nil
}

// Respond answers a pending request that requester sent to actor.
//
// Behavior:
//   - accept marks the connection accepted and notifies the requester.
//   - block marks it blocked; the requester is not told.
//   - No pending request from requester → NotFound, so a second answer fails.
func (s *Service) Respond(ctx context.Context, actor, requester uint64, req RespondRequest) (*View, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	status := db.ConnectionAccepted
	if req.Action == ActionBlock {
		status = db.ConnectionBlocked
	}

	c, err := s.connections.Respond(ctx, actor, requester, status)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	peer, err := s.users.GetByID(ctx, requester)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	if status == db.ConnectionAccepted {
		_, err = s.notify.Send(ctx, notify.Notice{
			Recipients: []uint64{requester},
			Type:       db.NotificationSystem,
			Title:      "Connection Accepted",
			Message:    "Your connection request was accepted",
			Data:       map[string]any{"userId": actor},
		})
		if err != nil {
			s.appCtx.Logger.Error("connection accepted notification failed", "actor", actor, "err", err)
		}
	}

	v := view(c, actor, *peer)
	return &v, nil
}

// List pages through the user's connections, optionally by status.
func (s *Service) List(ctx context.Context, userID uint64, status string, page, limit int) (*ListResult, error) {
	switch status {
	case "", db.ConnectionPending, db.ConnectionAccepted, db.ConnectionBlocked:
	default:
		return nil, svcErr.Validation("unknown status %q", status)
	}
	limit = pagination.Limit(limit, 20, 100)
	p, offset := pagination.NewPage(page, limit)

	rows, total, err := s.connections.List(ctx, userID, status, offset, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	peers := make([]uint64, len(rows))
	for i := range rows {
		peers[i] = rows[i].Peer(userID)
	}
	users, err := s.users.GetMany(ctx, peers)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := &ListResult{Connections: make([]View, len(rows)), Pagination: p.WithTotal(total)}
	for i := range rows {
		out.Connections[i] = view(&rows[i], userID, users[peers[i]])
	}
	return out, nil
}

// Remove deletes the connection between actor and peer, whatever its state.
func (s *Service) Remove(ctx context.Context, actor, peer uint64) error {
	ok, err := s.connections.Delete(ctx, actor, peer)
	if err != nil {
		return svcErr.Map(err)
	}
	if !ok {
		return svcErr.NotFound("connection not found")
	}
	return nil
}
