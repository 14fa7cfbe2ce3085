package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/testutil"
)

type fixture struct {
	env  *testutil.Env
	svc  *Service
	a, b *db.User
	m    *db.Match
}

// setup returns a chat-enabled match between two users and a service whose
// clock advances one second per reading.
func setup(t *testing.T) fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	svc := NewService(env.App, notify.NewService(env.App))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	a := env.CreateUser(t, "Rae", "female")
	b := env.CreateUser(t, "Sam", "male")
	return fixture{env: env, svc: svc, a: a, b: b, m: env.ChatMatch(t, a, b)}
}

func (f fixture) send(t *testing.T, from *db.User, text, clientID string) *SendResult {
	t.Helper()
	res, err := f.svc.SendMessage(context.Background(), from.ID, SendRequest{MatchID: f.m.ID, Text: text, ClientMessageID: clientID})
	require.NoError(t, err)
	return res
}

func TestSendMessage_DeliversAndReplays(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.env.Events.SetOnline(f.b.ID, true)

	res := f.send(t, f.a, "  hello there  ", "c-1")
	assert.False(t, res.Duplicate)
	assert.Equal(t, "hello there", res.Message.Text)
	assert.Equal(t, db.MessageSent, res.Message.Status)
	assert.Equal(t, []uint64{f.a.ID}, res.Message.ReadBy)

	got := f.env.Events.Named(EventNewMessage, f.b.ID)
	require.Len(t, got, 1)
	assert.Equal(t, res.Message.ID, got[0].Data.(NewMessagePayload).Message.ID)

	again := f.send(t, f.a, "hello there", "c-1")
	assert.True(t, again.Duplicate)
	assert.Equal(t, res.Message.ID, again.Message.ID)
	assert.Len(t, f.env.Events.Named(EventNewMessage, f.b.ID), 1, "replay is silent")

	_, err := f.svc.SendMessage(ctx, f.b.ID, SendRequest{MatchID: f.m.ID, Text: "mine", ClientMessageID: "c-1"})
	assert.True(t, errors.Is(err, svcErr.ErrConflict))

	f.env.App.Outbound.Wait()
	assert.Empty(t, f.env.Push.Calls(), "online peer gets no push")
}

func TestSendMessage_OfflinePeerGetsPush(t *testing.T) {
	f := setup(t)
	require.NoError(t, repository.NewUserRepository(f.env.DB).UpsertDevice(context.Background(), f.b.ID, "sam-phone", "ios"))

	f.send(t, f.a, strings.Repeat("é", 150), "c-long")
	f.env.App.Outbound.Wait()

	calls := f.env.Push.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"sam-phone"}, calls[0].Tokens)
	assert.Equal(t, "New Message", calls[0].Msg.Title)
	assert.Equal(t, strings.Repeat("é", 100), calls[0].Msg.Body)
	assert.Equal(t, fmt.Sprint(f.m.ID), calls[0].Msg.Data["matchId"])
}

func TestSendMessage_Rejections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	outsider := f.env.CreateUser(t, "Tia", "female")
	pending, _, err := repository.NewMatchRepository(f.env.DB).Ensure(ctx, f.a.ID, outsider.ID, f.a.ID, 100, []uint64{f.a.ID})
	require.NoError(t, err)

	cases := []struct {
		name string
		from uint64
		req  SendRequest
		want error
	}{
		{"blank text", f.a.ID, SendRequest{MatchID: f.m.ID, Text: "   ", ClientMessageID: "r-1"}, svcErr.ErrValidation},
		{"too long", f.a.ID, SendRequest{MatchID: f.m.ID, Text: strings.Repeat("a", 2001), ClientMessageID: "r-2"}, svcErr.ErrValidation},
		{"no client id", f.a.ID, SendRequest{MatchID: f.m.ID, Text: "hi"}, svcErr.ErrValidation},
		{"outsider", outsider.ID, SendRequest{MatchID: f.m.ID, Text: "hi", ClientMessageID: "r-3"}, svcErr.ErrNotFound},
		{"unknown match", f.a.ID, SendRequest{MatchID: 777, Text: "hi", ClientMessageID: "r-4"}, svcErr.ErrNotFound},
		{"chat disabled", f.a.ID, SendRequest{MatchID: pending.ID, Text: "hi", ClientMessageID: "r-5"}, svcErr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tc.from, tc.req)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	res := f.send(t, f.a, strings.Repeat("a", 2000), "r-ok")
	assert.NotZero(t, res.Message.ID)
}

func TestMarkDeliveredThenRead(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	outsider := f.env.CreateUser(t, "Uma", "female")
	msg := f.send(t, f.a, "ping", "d-1").Message

	_, err := f.svc.MarkDelivered(ctx, f.a.ID, msg.ID)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	v, err := f.svc.MarkDelivered(ctx, f.b.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MessageDelivered, v.Status)
	statuses := f.env.Events.Named(EventMessageStatus, f.a.ID)
	require.Len(t, statuses, 1)
	assert.Equal(t, db.MessageDelivered, statuses[0].Data.(StatusPayload).Status)

	_, err = f.svc.MarkDelivered(ctx, f.b.ID, msg.ID)
	require.NoError(t, err)
	assert.Len(t, f.env.Events.Named(EventMessageStatus, f.a.ID), 1)

	changed, err := f.svc.MarkRead(ctx, outsider.ID, msg.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.MarkRead(ctx, f.b.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	reads := f.env.Events.Named(EventMessageReadStatus, f.a.ID)
	require.Len(t, reads, 1)
	assert.Equal(t, ReadPayload{MessageID: msg.ID, ReadBy: []uint64{f.a.ID, f.b.ID}}, reads[0].Data)

	changed, err = f.svc.MarkRead(ctx, f.b.ID, msg.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, f.env.Events.Named(EventMessageReadStatus, f.a.ID), 1)

	// read is terminal for delivery receipts
	v, err = f.svc.MarkDelivered(ctx, f.b.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MessageRead, v.Status)
	assert.Len(t, f.env.Events.Named(EventMessageStatus, f.a.ID), 1)
}

func TestGetMessages_PagesBackwards(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for i := 0; i < 5; i++ {
		f.send(t, f.a, fmt.Sprintf("m%d", i), fmt.Sprintf("p-%d", i))
	}

	texts := func(h *History) []string {
		var out []string
		for _, m := range h.Messages {
			out = append(out, m.Text)
		}
		return out
	}

	page, err := f.svc.GetMessages(ctx, f.m.ID, f.b.ID, time.Time{}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4"}, texts(page))
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextBeforeTimestamp)

	page, err = f.svc.GetMessages(ctx, f.m.ID, f.b.ID, *page.NextBeforeTimestamp, page.NextBeforeID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, texts(page))
	assert.True(t, page.HasMore)

	page, err = f.svc.GetMessages(ctx, f.m.ID, f.b.ID, *page.NextBeforeTimestamp, page.NextBeforeID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0"}, texts(page))
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextBeforeTimestamp)

	outsider := f.env.CreateUser(t, "Val", "male")
	_, err = f.svc.GetMessages(ctx, f.m.ID, outsider.ID, time.Time{}, 0, 2)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))
}

func TestGetMessages_SharedTimestampAcrossPages(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return at }
	for i := 0; i < 3; i++ {
		f.send(t, f.a, fmt.Sprintf("t%d", i), fmt.Sprintf("t-%d", i))
	}

	page, err := f.svc.GetMessages(ctx, f.m.ID, f.b.ID, time.Time{}, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "t1", page.Messages[0].Text)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextBeforeTimestamp)
	assert.Equal(t, page.Messages[0].ID, page.NextBeforeID)

	page, err = f.svc.GetMessages(ctx, f.m.ID, f.b.ID, *page.NextBeforeTimestamp, page.NextBeforeID, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "t0", page.Messages[0].Text)
	assert.False(t, page.HasMore)
}

func TestSyncMessages(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	var cut time.Time
	for i := 0; i < 4; i++ {
		res := f.send(t, f.b, fmt.Sprintf("s%d", i), fmt.Sprintf("s-%d", i))
		if i == 1 {
			cut = res.Message.CreatedAt
		}
	}

	res, err := f.svc.SyncMessages(ctx, f.m.ID, f.a.ID, cut)
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "s2", res.Messages[0].Text)
	assert.Equal(t, "s3", res.Messages[1].Text)
	assert.True(t, res.SyncTimestamp.After(cut))
}

func TestResendFailedMessages(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.svc.ResendFailedMessages(ctx, f.a.ID, ResendRequest{Messages: []SendRequest{
		{MatchID: f.m.ID, Text: "queued one", ClientMessageID: "q-1"},
		{MatchID: f.m.ID, Text: " ", ClientMessageID: "q-2"},
		{MatchID: f.m.ID, Text: "queued one", ClientMessageID: "q-1"},
	}})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, db.MessageSent, out[0].Status)
	assert.NotZero(t, out[0].MessageID)
	assert.Equal(t, db.MessageFailed, out[1].Status)
	assert.NotEmpty(t, out[1].Error)
	assert.Equal(t, out[0].MessageID, out[2].MessageID, "replayed item keeps its id")

	_, err = f.svc.ResendFailedMessages(ctx, f.a.ID, ResendRequest{})
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	ts, err = ParseTimestamp("1767268800000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), ts)

	ts, err = ParseTimestamp("2026-01-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), ts)

	_, err = ParseTimestamp("yesterday")
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
}
