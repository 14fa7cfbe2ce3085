package matches

import (
	"context"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/metrics"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/matcher"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/service/profile"
)

// Realtime events emitted by match transitions.
const (
	EventMatchAccepted = "matchAccepted"
	EventMatchUpdate   = "matchUpdateReceived"
	EventMatchRemoved  = "matchRemoved"
)

// Accept outcomes.
const (
	StatusAccepted          = "accepted"
	StatusPendingAcceptance = "pending_acceptance"
	StatusUnchanged         = "unchanged"
)

// View is a match as returned to clients.
type View struct {
	ID              uint64    `json:"id"`
	Users           []uint64  `json:"users"`
	InitiatorID     uint64    `json:"initiatorId"`
	Status          string    `json:"status"`
	MatchPercentage int       `json:"matchPercentage"`
	AcceptedBy      []uint64  `json:"acceptedBy"`
	ChatEnabled     bool      `json:"chatEnabled"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toView(m *db.Match) View {
	return View{
		ID:              m.ID,
		Users:           m.Users(),
		InitiatorID:     m.InitiatorID,
		Status:          m.Status,
		MatchPercentage: m.MatchPercentage,
		AcceptedBy:      m.AcceptedBy(),
		ChatEnabled:     m.ChatEnabled,
		CreatedAt:       m.CreatedAt,
	}
}

// AcceptResult reports what an accept call did.
type AcceptResult struct {
	Match  View   `json:"match"`
	Status string `json:"status"`
}

// UpdatePayload is sent with matchUpdateReceived.
type UpdatePayload struct {
	MatchID      uint64       `json:"matchId"`
	Status       string       `json:"status"`
	AcceptedBy   []uint64     `json:"acceptedBy"`
	UserID       uint64       `json:"userId"`
	Notification *notify.View `json:"notification,omitempty"`
}

// AcceptedPayload is sent with matchAccepted.
type AcceptedPayload struct {
	MatchID      uint64          `json:"matchId"`
	ChatEnabled  bool            `json:"chatEnabled"`
	Peer         profile.Summary `json:"peer"`
	Notification *notify.View    `json:"notification,omitempty"`
}

// LastMessage summarises a chat's latest message.
type LastMessage struct {
	Text     string    `json:"text"`
	SenderID uint64    `json:"senderId"`
	At       time.Time `json:"at"`
}

// Chat is one open conversation in the chat list.
type Chat struct {
	MatchID         uint64          `json:"matchId"`
	User            profile.Summary `json:"user"`
	MatchPercentage int             `json:"matchPercentage"`
	LastMessage     *LastMessage    `json:"lastMessage,omitempty"`
	UnreadCount     int64           `json:"unreadCount"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Service drives match transitions. Every transition is a conditional
// update, so concurrent callers cannot apply the same one twice.
type Service struct {
	appCtx    *app.AppContext
	matches   *repository.MatchRepository
	messages  *repository.MessageRepository
	users     *repository.UserRepository
	responses *repository.ResponseRepository
	notify    *notify.Service
}

func NewService(appCtx *app.AppContext, notifications *notify.Service) *Service {
	return &Service{
		appCtx:    appCtx,
		matches:   repository.NewMatchRepository(appCtx.DB),
		messages:  repository.NewMessageRepository(appCtx.DB),
		users:     repository.NewUserRepository(appCtx.DB),
		responses: repository.NewResponseRepository(appCtx.DB),
		notify:    notifications,
	}
}

// participantMatch loads a live match the user belongs to. Outsiders get
// NotFound, never a hint that the match exists.
func (s *Service) participantMatch(ctx context.Context, matchID, userID uint64) (*db.Match, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !m.Has(userID) {
		return nil, svcErr.NotFound("match not found")
	}
	return m, nil
}

// RequestMatch opens a pending match from actor to peer directly.
//
// Behavior:
//   - matchPercentage is the share of the actor's "same" answers the peer
//     shares (100 when there are none).
//   - ConflictError when the pair already has a live match.
//   - The peer is notified.
func (s *Service) RequestMatch(ctx context.Context, actor, peer uint64) (*View, error) {
	s.appCtx.Logger.Debug("RequestMatch called", "actor", actor, "peer", peer)

	if actor == peer {
		return nil, svcErr.Validation("cannot match with yourself")
	}
	users, err := s.users.GetMany(ctx, []uint64{actor, peer})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if _, ok := users[peer]; !ok {
		return nil, svcErr.NotFound("user not found")
	}

	pct, err := s.percentage(ctx, actor, peer)
	if err != nil {
		return nil, err
	}

	m, created, err := s.matches.Ensure(ctx, actor, peer, actor, pct, []uint64{actor})
	if err != nil {
		s.appCtx.Logger.Error("Ensure match failed", "actor", actor, "peer", peer, "err", err)
		return nil, svcErr.Map(err)
	}
	if !created {
		return nil, svcErr.Conflict("a match with this user already exists")
	}
	metrics.MatchTransitions.WithLabelValues("requested").Inc()

	_, err = s.notify.Send(ctx, notify.Notice{
		Recipients: []uint64{peer},
		Type:       db.NotificationMatch,
		Title:      "New Match Request",
		Message:    users[actor].Name + " wants to match with you",
		Data:       map[string]any{"matchId": m.ID, "userId": actor},
	})
	if err != nil {
		s.appCtx.Logger.Error("match request notification failed", "match_id", m.ID, "err", err)
	}

	v := toView(m)
	return &v, nil
}

func (s *Service) percentage(ctx context.Context, actor, peer uint64) (int, error) {
	answers, err := s.responses.Answers(ctx, []uint64{actor, peer})
	if err != nil {
		return 0, svcErr.Map(err)
	}
	criteria := matcher.Criteria(answers[actor])
	if len(criteria) == 0 {
		return 100, nil
	}
	theirs := make(map[uint64]string, len(answers[peer]))
	for _, a := range answers[peer] {
		theirs[a.QuestionID] = a.Value
	}
	shared := 0
	for _, c := range criteria {
		if theirs[c.QuestionID] == c.Value {
			shared++
		}
	}
	return shared * 100 / len(criteria), nil
}

// Accept records userID's acceptance.
//
// Behavior:
//  1. Adds the user to the accepted set if the match is still pending and,
//     in the same transaction, opens the chat if both participants have
//     accepted. Exactly one caller opens it, and only that caller notifies
//     both users.
//  2. A caller that only recorded its acceptance notifies the other participant
//     that acceptance is pending on them.
//  3. Repeats are no-ops reported as "unchanged".
//
// Example:
//
//	res, err := svc.Accept(ctx, matchID, userID)
func (s *Service) Accept(ctx context.Context, matchID, userID uint64) (*AcceptResult, error) {
	s.appCtx.Logger.Debug("Accept called", "match_id", matchID, "user_id", userID)

	m, err := s.participantMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if m.Status == db.MatchRejected {
		return nil, svcErr.Conflict("match was rejected")
	}

	changed, won, err := s.matches.Accept(ctx, m, userID)
	if err != nil {
		s.appCtx.Logger.Error("accept match failed", "match_id", m.ID, "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}

	if m, err = s.matches.Get(ctx, m.ID); err != nil {
		return nil, svcErr.Map(err)
	}
	res := &AcceptResult{Match: toView(m), Status: StatusUnchanged}

	switch {
	case won:
		res.Status = StatusAccepted
		metrics.MatchTransitions.WithLabelValues("accepted").Inc()
		s.announceComplete(ctx, m)
	case changed && !m.ChatEnabled:
		res.Status = StatusPendingAcceptance
		metrics.MatchTransitions.WithLabelValues("partial").Inc()
		s.announcePartial(ctx, m, userID)
	case changed:
		// the other participant's call opened the chat in between
		res.Status = StatusAccepted
	}
	return res, nil
}

func (s *Service) announceComplete(ctx context.Context, m *db.Match) {
	users, err := s.users.GetMany(ctx, m.Users())
	if err != nil {
		s.appCtx.Logger.Warn("load match users failed", "match_id", m.ID, "err", err)
	}
	_, err = s.notify.Send(ctx, notify.Notice{
		Recipients: m.Users(),
		Type:       db.NotificationMatch,
		Title:      "Match Complete!",
		Message:    "You can now start chatting with your match",
		Data:       map[string]any{"matchId": m.ID},
		Event:      EventMatchAccepted,
		Payload: func(uid uint64, v notify.View) any {
			return AcceptedPayload{
				MatchID:      m.ID,
				ChatEnabled:  true,
				Peer:         profile.Summarize(users[m.Peer(uid)]),
				Notification: &v,
			}
		},
		Push: true,
	})
	if err != nil {
		s.appCtx.Logger.Error("match complete notification failed", "match_id", m.ID, "err", err)
	}
}

func (s *Service) announcePartial(ctx context.Context, m *db.Match, userID uint64) {
	other := m.Peer(userID)
	name := "Your match"
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		name = u.Name
	}
	_, err := s.notify.Send(ctx, notify.Notice{
		Recipients: []uint64{other},
		Type:       db.NotificationMatch,
		Title:      "Match Update",
		Message:    name + " accepted your match. Accept to start chatting!",
		Data:       map[string]any{"matchId": m.ID, "userId": userID},
		Event:      EventMatchUpdate,
		Payload: func(_ uint64, v notify.View) any {
			return UpdatePayload{
				MatchID:      m.ID,
				Status:       StatusPendingAcceptance,
				AcceptedBy:   m.AcceptedBy(),
				UserID:       userID,
				Notification: &v,
			}
		},
		Push: true,
	})
	if err != nil {
		s.appCtx.Logger.Error("match update notification failed", "match_id", m.ID, "err", err)
	}
}

// Reject moves a pending match to rejected and tells the other participant.
// Rejecting an already rejected match is a no-op; an accepted one is a conflict.
func (s *Service) Reject(ctx context.Context, matchID, userID uint64) (*View, error) {
	s.appCtx.Logger.Debug("Reject called", "match_id", matchID, "user_id", userID)

	m, err := s.participantMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.matches.Reject(ctx, m.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !ok {
		if m, err = s.matches.Get(ctx, m.ID); err != nil {
			return nil, svcErr.Map(err)
		}
		if m.Status != db.MatchRejected {
			return nil, svcErr.Conflict("only pending matches can be rejected")
		}
		v := toView(m)
		return &v, nil
	}
	metrics.MatchTransitions.WithLabelValues("rejected").Inc()

	_, err = s.notify.Send(ctx, notify.Notice{
		Recipients: []uint64{m.Peer(userID)},
		Type:       db.NotificationMatch,
		Title:      "Match Update",
		Message:    "A match was declined",
		Data:       map[string]any{"matchId": m.ID},
	})
	if err != nil {
		s.appCtx.Logger.Error("match reject notification failed", "match_id", m.ID, "err", err)
	}

	m.Status = db.MatchRejected
	v := toView(m)
	return &v, nil
}

// Unmatch soft-deletes the match, closing the chat for both users. The pair
// may match again later.
func (s *Service) Unmatch(ctx context.Context, matchID, userID uint64) error {
	m, err := s.participantMatch(ctx, matchID, userID)
	if err != nil {
		return err
	}
	ok, err := s.matches.SoftDelete(ctx, m.ID)
	if err != nil {
		return svcErr.Map(err)
	}
	if !ok {
		return svcErr.NotFound("match not found")
	}
	metrics.MatchTransitions.WithLabelValues("unmatched").Inc()
	s.appCtx.Realtime.Emit(m.Peer(userID), EventMatchRemoved, map[string]uint64{"matchId": m.ID})
	return nil
}

// ListChatMatches returns the user's open chats, latest activity first.
func (s *Service) ListChatMatches(ctx context.Context, userID uint64) ([]Chat, error) {
	rows, err := s.matches.ListChatEnabled(ctx, userID)
	if err != nil {
		s.appCtx.Logger.Error("ListChatEnabled failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	out := make([]Chat, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	peers := make([]uint64, len(rows))
	ids := make([]uint64, len(rows))
	for i, m := range rows {
		peers[i] = m.Peer(userID)
		ids[i] = m.ID
	}
	users, err := s.users.GetMany(ctx, peers)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	unread, err := s.messages.UnreadCounts(ctx, ids, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	for _, m := range rows {
		c := Chat{
			MatchID:         m.ID,
			User:            profile.Summarize(users[m.Peer(userID)]),
			MatchPercentage: m.MatchPercentage,
			UnreadCount:     unread[m.ID],
			UpdatedAt:       m.UpdatedAt,
		}
		if m.LastMessage.At != nil {
			c.LastMessage = &LastMessage{Text: m.LastMessage.Text, SenderID: m.LastMessage.SenderID, At: *m.LastMessage.At}
		}
		out = append(out, c)
	}
	return out, nil
}

// PendingCount counts pending matches waiting on the user's acceptance.
func (s *Service) PendingCount(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.matches.CountAwaiting(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	return n, nil
}
