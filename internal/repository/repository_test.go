package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/matchchat/internal/db"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/testutil"
)

func TestConnections_CreateRespondList(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConnectionRepository(testutil.OpenDB(t))

	created, err := repo.Create(ctx, 5, 2)
	require.NoError(t, err)
	assert.True(t, created)

	// either direction hits the same row
	created, err = repo.Create(ctx, 2, 5)
	require.NoError(t, err)
	assert.False(t, created)

	// the initiator cannot answer their own request
	_, err = repo.Respond(ctx, 5, 2, db.ConnectionAccepted)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	c, err := repo.Respond(ctx, 2, 5, db.ConnectionAccepted)
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionAccepted, c.Status)
	assert.Equal(t, uint64(5), c.Peer(2))

	// second response finds nothing pending
	_, err = repo.Respond(ctx, 2, 5, db.ConnectionBlocked)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, _ = repo.Create(ctx, 5, 9)

	all, total, err := repo.List(ctx, 5, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	accepted, total, err := repo.List(ctx, 5, db.ConnectionAccepted, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, accepted, 1)
	assert.Equal(t, uint64(2), accepted[0].Peer(5))

	removed, err := repo.Delete(ctx, 2, 5)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Delete(ctx, 2, 5)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMessages_CreateIsIdempotentOnClientID(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	matches := repository.NewMatchRepository(gdb)
	repo := repository.NewMessageRepository(gdb)

	m, _, err := matches.Ensure(ctx, 1, 2, 1, 100, nil)
	require.NoError(t, err)

	msg := &db.Message{MatchID: m.ID, SenderID: 1, Text: "hi", ClientMessageID: "c-1", Status: db.MessageSent}
	created, err := repo.Create(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, msg.ID)

	dup := &db.Message{MatchID: m.ID, SenderID: 1, Text: "hi again", ClientMessageID: "c-1", Status: db.MessageSent}
	created, err = repo.Create(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.GetByClientID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, stored.ID)
	assert.Equal(t, "hi", stored.Text)

	var count int64
	require.NoError(t, gdb.Model(&db.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// sender is in the read set, match summary updated
	readers, err := repo.Readers(ctx, []uint64{msg.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, readers[msg.ID])

	got, err := matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.LastMessage.Text)
	assert.Equal(t, uint64(1), got.LastMessage.SenderID)
	require.NotNil(t, got.LastMessage.At)
}

func TestMessages_StatusAndReads(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	repo := repository.NewMessageRepository(gdb)

	msg := &db.Message{MatchID: 1, SenderID: 1, Text: "x", ClientMessageID: "k", Status: db.MessageSent}
	_, err := repo.Create(ctx, msg)
	require.NoError(t, err)

	ok, err := repo.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	added, err := repo.AddReader(ctx, msg.ID, 2, time.Now())
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddReader(ctx, msg.ID, 2, time.Now())
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, db.MessageRead, got.Status)

	readers, err := repo.Readers(ctx, []uint64{msg.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1, 2}, readers[msg.ID])

	// read messages cannot regress to delivered
	ok, err = repo.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessages_PagingAndUnread(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.OpenDB(t)
	repo := repository.NewMessageRepository(gdb)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sender := uint64(1)
		if i%2 == 1 {
			sender = 2
		}
		msg := &db.Message{
			MatchID:         1,
			SenderID:        sender,
			Text:            "m",
			ClientMessageID: string(rune('a' + i)),
			Status:          db.MessageSent,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		_, err := repo.Create(ctx, msg)
		require.NoError(t, err)
	}

	page, err := repo.ListBefore(ctx, 1, time.Time{}, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "e", page[0].ClientMessageID)
	assert.Equal(t, "d", page[1].ClientMessageID)

	page, err = repo.ListBefore(ctx, 1, page[1].CreatedAt, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "c", page[0].ClientMessageID)

	after, err := repo.ListAfter(ctx, 1, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "d", after[0].ClientMessageID)
	assert.Equal(t, "e", after[1].ClientMessageID)

	// user 1 has not read user 2's two messages
	unread, err := repo.UnreadCounts(ctx, []uint64{1, 99}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread[1])
	assert.Zero(t, unread[99])

	_, err = repo.AddReader(ctx, after[0].ID, 1, time.Now())
	require.NoError(t, err)
	unread, err = repo.UnreadCounts(ctx, []uint64{1}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread[1])
}

func TestNotifications_ListMarkCount(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepository(testutil.OpenDB(t))

	rows := []db.Notification{
		{UserID: 1, Type: db.NotificationMatch, Title: "a", Message: "a", Data: datatypes.JSONMap{"matchId": 4}},
		{UserID: 1, Type: db.NotificationMessage, Title: "b", Message: "b"},
		{UserID: 2, Type: db.NotificationSystem, Title: "c", Message: "c"},
	}
	require.NoError(t, repo.CreateBatch(ctx, rows))

	list, total, err := repo.List(ctx, 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Title)

	n, err := repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// another user's row is invisible
	changed, err := repo.MarkRead(ctx, rows[2].ID, 1)
	require.NoError(t, err)
	assert.False(t, changed)
	_, err = repo.Get(ctx, rows[2].ID, 1)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	changed, err = repo.MarkRead(ctx, rows[0].ID, 1)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkRead(ctx, rows[0].ID, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	n, err = repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, rows[0].ID, 1)
	require.NoError(t, err)
	// JSONMap decodes numbers as json.Number
	assert.Equal(t, json.Number("4"), got.Data["matchId"])
}

func TestResponses_FindCandidates(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	repo := repository.NewResponseRepository(env.DB)

	alice := env.CreateUser(t, "Alice", "female")
	beth := env.CreateUser(t, "Beth", "female")
	cara := env.CreateUser(t, "Cara", "female")
	dina := env.CreateUser(t, "Dina", "female")
	ed := env.CreateUser(t, "Ed", "male")

	env.Respond(t, alice, true,
		testutil.Answer{Question: 1, Value: "never", Preference: db.PreferenceSame},
		testutil.Answer{Question: 2, Value: "early"})
	bResp := env.Respond(t, beth, true,
		testutil.Answer{Question: 1, Value: "never"},
		testutil.Answer{Question: 2, Value: "late"})
	env.Respond(t, cara, true,
		testutil.Answer{Question: 1, Value: "regularly"},
		testutil.Answer{Question: 2, Value: "early"})
	env.Respond(t, dina, false,
		testutil.Answer{Question: 1, Value: "never"})
	env.Respond(t, ed, true,
		testutil.Answer{Question: 1, Value: "never"},
		testutil.Answer{Question: 2, Value: "early"})

	alcohol := env.QuestionID(t, 1)
	got, err := repo.FindCandidates(ctx, repository.CandidateQuery{
		RequesterID: alice.ID,
		Gender:      "female",
		Criteria:    []repository.Criterion{{QuestionID: alcohol, Value: "never"}},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, beth.ID, got[0].UserID)
	assert.Equal(t, bResp.ID, got[0].ID)

	// no criteria: every mandatory-complete peer of that gender, newest first
	got, err = repo.FindCandidates(ctx, repository.CandidateQuery{RequesterID: alice.ID, Gender: "female", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, cara.ID, got[0].UserID)
	assert.Equal(t, beth.ID, got[1].UserID)

	got, err = repo.FindCandidates(ctx, repository.CandidateQuery{
		RequesterID: alice.ID, Gender: "female", BeforeID: got[0].ID, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, beth.ID, got[0].UserID)
}

func TestResponses_ReplaceKeepsHeaderID(t *testing.T) {
	env := testutil.NewEnv(t)
	u := env.CreateUser(t, "Zoe", "female")

	first := env.Respond(t, u, false, testutil.Answer{Question: 1, Value: "never"})
	second := env.Respond(t, u, true,
		testutil.Answer{Question: 1, Value: "socially"},
		testutil.Answer{Question: 2, Value: "late"})

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.MandatoryQuestionsCompleted)

	_, answers, err := repository.NewResponseRepository(env.DB).Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "socially", answers[0].Value)
}

func TestUsers_DevicesAndUpdate(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	repo := repository.NewUserRepository(env.DB)
	a := env.CreateUser(t, "Amy", "female")
	b := env.CreateUser(t, "Bob", "male")

	require.NoError(t, repo.UpsertDevice(ctx, a.ID, "tok-1", "ios"))
	require.NoError(t, repo.UpsertDevice(ctx, a.ID, "tok-2", "android"))
	// a token moves to its latest owner
	require.NoError(t, repo.UpsertDevice(ctx, b.ID, "tok-1", "ios"))

	tokens, err := repo.DeviceTokens(ctx, []uint64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-2"}, tokens[a.ID])
	assert.Equal(t, []string{"tok-1"}, tokens[b.ID])

	require.NoError(t, repo.Update(ctx, a.ID, map[string]any{"city": "Leeds"}))
	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leeds", got.City)

	err = repo.Update(ctx, 9999, map[string]any{"city": "Nowhere"})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, repo.RecordOTPAttempt(ctx, a.ID, time.Now()))
	require.NoError(t, repo.RecordOTPAttempt(ctx, a.ID, time.Now()))
	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OTP.Attempts)
}

func TestPersonalities_SetTraitsReplaces(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	repo := repository.NewPersonalityRepository(env.DB)
	users := repository.NewUserRepository(env.DB)
	a := env.CreateUser(t, "Amy", "female")

	catalog, err := repo.List(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(catalog), 3)

	ok, err := repo.SetTraits(ctx, a.ID, []uint64{catalog[0].ID, catalog[1].ID, catalog[0].ID})
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := users.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Traits, 2)

	ok, err = repo.SetTraits(ctx, a.ID, []uint64{catalog[2].ID})
	require.NoError(t, err)
	assert.True(t, ok)
	many, err := users.GetMany(ctx, []uint64{a.ID})
	require.NoError(t, err)
	require.Len(t, many[a.ID].Traits, 1)
	assert.Equal(t, catalog[2].Name, many[a.ID].Traits[0].Name)

	// an unknown id leaves the current set untouched
	ok, err = repo.SetTraits(ctx, a.ID, []uint64{catalog[0].ID, 9999})
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = users.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Traits, 1)
	assert.Equal(t, catalog[2].ID, got.Traits[0].ID)

	ok, err = repo.SetTraits(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = users.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Traits)
}
