package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/metrics"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/utils/pagination"
	"github.com/oggyb/matchchat/internal/utils/validation"
)

// Realtime events emitted by the message pipeline.
const (
	EventNewMessage        = "newMessage"
	EventMessageStatus     = "messageStatus"
	EventMessageReadStatus = "messageReadStatus"
)

const (
	maxTextLength  = 2000
	pushPreviewLen = 100
)

// MessageView is a message as returned to clients.
type MessageView struct {
	ID              uint64    `json:"id"`
	MatchID         uint64    `json:"matchId"`
	SenderID        uint64    `json:"senderId"`
	Text            string    `json:"text"`
	ClientMessageID string    `json:"clientMessageId"`
	Status          string    `json:"status"`
	ReadBy          []uint64  `json:"readBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toView(m *db.Message, readBy []uint64) MessageView {
	if readBy == nil {
		readBy = []uint64{}
	}
	return MessageView{
		ID:              m.ID,
		MatchID:         m.MatchID,
		SenderID:        m.SenderID,
		Text:            m.Text,
		ClientMessageID: m.ClientMessageID,
		Status:          m.Status,
		ReadBy:          readBy,
		CreatedAt:       m.CreatedAt,
	}
}

// SendRequest is one outgoing message.
type SendRequest struct {
	MatchID         uint64 `json:"matchId" validate:"required"`
	Text            string `json:"text" validate:"required"`
	ClientMessageID string `json:"clientMessageId" validate:"required,max=128"`
}

// SendResult reports a stored message. Duplicate is set when the client
// message id had been stored before and nothing new happened.
type SendResult struct {
	Message   MessageView `json:"message"`
	Duplicate bool        `json:"duplicate"`
}

// NewMessagePayload is sent with newMessage.
type NewMessagePayload struct {
	MatchID uint64      `json:"matchId"`
	Message MessageView `json:"message"`
}

// StatusPayload is sent with messageStatus.
type StatusPayload struct {
	MessageID       uint64     `json:"messageId,omitempty"`
	ClientMessageID string     `json:"clientMessageId,omitempty"`
	MatchID         uint64     `json:"matchId,omitempty"`
	Status          string     `json:"status"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ReadPayload is sent with messageReadStatus.
type ReadPayload struct {
	MessageID uint64   `json:"messageId"`
	ReadBy    []uint64 `json:"readBy"`
}

// History is one page of a conversation, oldest first.
type History struct {
	Messages            []MessageView `json:"messages"`
	HasMore             bool          `json:"hasMore"`
	NextBeforeTimestamp *time.Time    `json:"nextBeforeTimestamp,omitempty"`
	// NextBeforeID breaks ties between messages sharing NextBeforeTimestamp.
	NextBeforeID uint64 `json:"nextBeforeId,omitempty"`
}

// Sync holds everything created after the client's last sync.
type Sync struct {
	Messages      []MessageView `json:"messages"`
	SyncTimestamp time.Time     `json:"syncTimestamp"`
}

// ResendResult is the outcome of one queued message.
type ResendResult struct {
	ClientMessageID string `json:"clientMessageId"`
	MessageID       uint64 `json:"messageId,omitempty"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

type ResendRequest struct {
	Messages []SendRequest `json:"messages" validate:"required,min=1,max=100"`
}

// Service is the message pipeline: persistence, delivery and read receipts.
type Service struct {
	appCtx   *app.AppContext
	matches  *repository.MatchRepository
	messages *repository.MessageRepository
	notify   *notify.Service
	now      func() time.Time
}

func NewService(appCtx *app.AppContext, notifications *notify.Service) *Service {
	return &Service{
		appCtx:   appCtx,
		matches:  repository.NewMatchRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
		notify:   notifications,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

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

// SendMessage stores and delivers one message.
//
// Behavior:
//   - Text is trimmed and must be 1..2000 characters.
//   - The sender must be a participant of a match whose chat is enabled.
//   - A client message id seen before from the same sender and match
//     returns the stored message with Duplicate set; the peer is not
//     notified again. The same id from anyone else is a conflict.
//   - The peer receives newMessage; when they have no live connection a
//     push is sent instead.
func (s *Service) SendMessage(ctx context.Context, senderID uint64, req SendRequest) (*SendResult, error) {
	s.appCtx.Logger.Debug("SendMessage called", "match_id", req.MatchID, "sender_id", senderID)

	req.Text = strings.TrimSpace(req.Text)
	req.ClientMessageID = strings.TrimSpace(req.ClientMessageID)
	if err := validation.Struct(req); err != nil {
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if utf8.RuneCountInString(req.Text) > maxTextLength {
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, svcErr.Validation("text must be at most %d characters", maxTextLength)
	}

	m, err := s.participantMatch(ctx, req.MatchID, senderID)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !m.ChatEnabled {
		metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return nil, svcErr.Validation("chat is not enabled for this match")
	}

	msg := &db.Message{
		MatchID:         m.ID,
		SenderID:        senderID,
		Text:            req.Text,
		ClientMessageID: req.ClientMessageID,
		Status:          db.MessageSent,
		CreatedAt:       s.now().Truncate(time.Millisecond),
	}
	created, err := s.messages.Create(ctx, msg)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		s.appCtx.Logger.Error("message insert failed", "match_id", m.ID, "err", err)
		return nil, svcErr.Map(err)
	}
	if !created {
		return s.replay(ctx, senderID, req)
	}
	metrics.MessagesSent.WithLabelValues("sent").Inc()

	view := toView(msg, []uint64{senderID})
	peer := m.Peer(senderID)
	if !s.appCtx.Realtime.Emit(peer, EventNewMessage, NewMessagePayload{MatchID: m.ID, Message: view}) {
		s.notify.PushOffline(ctx, peer, "New Message", preview(msg.Text), map[string]string{
			"matchId":   strconv.FormatUint(m.ID, 10),
			"messageId": strconv.FormatUint(msg.ID, 10),
		})
	}
	return &SendResult{Message: view}, nil
}

func (s *Service) replay(ctx context.Context, senderID uint64, req SendRequest) (*SendResult, error) {
	stored, err := s.messages.GetByClientID(ctx, req.ClientMessageID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if stored.SenderID != senderID || stored.MatchID != req.MatchID {
		metrics.MessagesSent.WithLabelValues("conflict").Inc()
		return nil, svcErr.Conflict("client message id already used")
	}
	readers, err := s.messages.Readers(ctx, []uint64{stored.ID})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	metrics.MessagesSent.WithLabelValues("duplicate").Inc()
	return &SendResult{Message: toView(stored, readers[stored.ID]), Duplicate: true}, nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= pushPreviewLen {
		return text
	}
	return string([]rune(text)[:pushPreviewLen])
}

// message loads a message and its match, checking userID takes part in it.
func (s *Service) message(ctx context.Context, messageID, userID uint64) (*db.Message, *db.Match, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}
	m, err := s.participantMatch(ctx, msg.MatchID, userID)
	if err != nil {
		return nil, nil, err
	}
	return msg, m, nil
}

// MarkDelivered moves a sent message to delivered on the recipient's behalf
// and tells the sender. Later states are left alone.
func (s *Service) MarkDelivered(ctx context.Context, userID, messageID uint64) (*MessageView, error) {
	msg, _, err := s.message(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == userID {
		return nil, svcErr.Validation("sender cannot confirm delivery")
	}

	changed, err := s.messages.MarkDelivered(ctx, msg.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if changed {
		msg.Status = db.MessageDelivered
		s.appCtx.Realtime.Emit(msg.SenderID, EventMessageStatus, StatusPayload{
			MessageID:       msg.ID,
			ClientMessageID: msg.ClientMessageID,
			MatchID:         msg.MatchID,
			Status:          db.MessageDelivered,
		})
	}
	readers, err := s.messages.Readers(ctx, []uint64{msg.ID})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	v := toView(msg, readers[msg.ID])
	return &v, nil
}

// MarkRead adds userID to the message's read set.
// Returns false when nothing changed: the user already read it or does not
// take part in the match.
func (s *Service) MarkRead(ctx context.Context, userID, messageID uint64) (bool, error) {
	msg, _, err := s.message(ctx, messageID, userID)
	if errors.Is(err, svcErr.ErrNotFound) {
		s.appCtx.Logger.Debug("MarkRead ignored", "message_id", messageID, "user_id", userID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	added, err := s.messages.AddReader(ctx, msg.ID, userID, s.now())
	if err != nil {
		return false, svcErr.Map(err)
	}
	if !added {
		return false, nil
	}
	readers, err := s.messages.Readers(ctx, []uint64{msg.ID})
	if err != nil {
		return true, svcErr.Map(err)
	}
	s.appCtx.Realtime.Emit(msg.SenderID, EventMessageReadStatus, ReadPayload{
		MessageID: msg.ID,
		ReadBy:    readers[msg.ID],
	})
	return true, nil
}

// GetMessages pages backwards through a conversation.
//
// Behavior:
//   - A zero before starts at the newest message.
//   - Messages come back oldest first; NextBeforeTimestamp and NextBeforeID
//     identify the oldest returned message and are set only when HasMore is.
//   - Passing both back continues exactly below that message, including
//     messages that share its timestamp.
func (s *Service) GetMessages(ctx context.Context, matchID, userID uint64, before time.Time, beforeID uint64, limit int) (*History, error) {
	if _, err := s.participantMatch(ctx, matchID, userID); err != nil {
		return nil, err
	}
	limit = pagination.Limit(limit, 20, 100)

	rows, err := s.messages.ListBefore(ctx, matchID, before, beforeID, limit+1)
	if err != nil {
		s.appCtx.Logger.Error("ListBefore failed", "match_id", matchID, "err", err)
		return nil, svcErr.Map(err)
	}
	out := &History{}
	if len(rows) > limit {
		out.HasMore = true
		rows = rows[:limit]
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if out.Messages, err = s.views(ctx, rows); err != nil {
		return nil, err
	}
	if out.HasMore {
		ts := rows[0].CreatedAt
		out.NextBeforeTimestamp = &ts
		out.NextBeforeID = rows[0].ID
	}
	return out, nil
}

// SyncMessages returns every message created after since.
func (s *Service) SyncMessages(ctx context.Context, matchID, userID uint64, since time.Time) (*Sync, error) {
	if _, err := s.participantMatch(ctx, matchID, userID); err != nil {
		return nil, err
	}
	at := s.now()
	rows, err := s.messages.ListAfter(ctx, matchID, since)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	views, err := s.views(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &Sync{Messages: views, SyncTimestamp: at}, nil
}

func (s *Service) views(ctx context.Context, rows []db.Message) ([]MessageView, error) {
	ids := make([]uint64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	readers, err := s.messages.Readers(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]MessageView, len(rows))
	for i := range rows {
		out[i] = toView(&rows[i], readers[rows[i].ID])
	}
	return out, nil
}

// ResendFailedMessages sends each queued message independently. A failure
// is reported in its item and does not stop the rest.
func (s *Service) ResendFailedMessages(ctx context.Context, userID uint64, req ResendRequest) ([]ResendResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	out := make([]ResendResult, len(req.Messages))
	for i, item := range req.Messages {
		out[i].ClientMessageID = item.ClientMessageID
		res, err := s.SendMessage(ctx, userID, item)
		if err != nil {
			out[i].Status = db.MessageFailed
			out[i].Error = svcErr.PublicMessage(err)
			continue
		}
		out[i].MessageID = res.Message.ID
		out[i].Status = db.MessageSent
	}
	return out, nil
}
