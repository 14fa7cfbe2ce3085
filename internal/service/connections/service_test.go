package connections_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/service/connections"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/testutil"
)

func newService(t *testing.T) (*testutil.Env, *connections.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	return env, connections.NewService(env.App, notify.NewService(env.App))
}

func TestSendRequest(t *testing.T) {
	ctx := context.Background()
	env, svc := newService(t)
	a := env.CreateUser(t, "Ivy", "female")
	b := env.CreateUser(t, "Jon", "male")

	v, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionPending, v.Status)
	assert.Equal(t, b.ID, v.User.ID)
	assert.False(t, v.Incoming)
	assert.Len(t, env.Events.Named(notify.EventNotification, b.ID), 1)

	_, err = svc.SendRequest(ctx, b.ID, a.ID)
	assert.True(t, errors.Is(err, svcErr.ErrConflict), "reverse direction shares the row")

	_, err = svc.SendRequest(ctx, a.ID, a.ID)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	_, err = svc.SendRequest(ctx, a.ID, 4242)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))
}

func TestRespond(t *testing.T) {
	ctx := context.Background()
	env, svc := newService(t)
	a := env.CreateUser(t, "Kim", "female")
	b := env.CreateUser(t, "Lou", "male")
	_, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	// the requester cannot answer their own request
	_, err = svc.Respond(ctx, a.ID, b.ID, connections.RespondRequest{Action: connections.ActionAccept})
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))

	_, err = svc.Respond(ctx, b.ID, a.ID, connections.RespondRequest{Action: "ignore"})
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	v, err := svc.Respond(ctx, b.ID, a.ID, connections.RespondRequest{Action: connections.ActionAccept})
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionAccepted, v.Status)
	assert.True(t, v.Incoming)
	assert.Len(t, env.Events.Named(notify.EventNotification, a.ID), 1)

	_, err = svc.Respond(ctx, b.ID, a.ID, connections.RespondRequest{Action: connections.ActionBlock})
	assert.True(t, errors.Is(err, svcErr.ErrNotFound), "only pending requests can be answered")
}

func TestRespond_BlockIsSilent(t *testing.T) {
	ctx := context.Background()
	env, svc := newService(t)
	a := env.CreateUser(t, "Max", "male")
	b := env.CreateUser(t, "Nia", "female")
	_, err := svc.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)

	v, err := svc.Respond(ctx, b.ID, a.ID, connections.RespondRequest{Action: connections.ActionBlock})
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionBlocked, v.Status)
	assert.Empty(t, env.Events.Named(notify.EventNotification, a.ID))
}

func TestListAndRemove(t *testing.T) {
	ctx := context.Background()
	env, svc := newService(t)
	me := env.CreateUser(t, "Oli", "male")
	p1 := env.CreateUser(t, "Pam", "female")
	p2 := env.CreateUser(t, "Quin", "male")

	_, err := svc.SendRequest(ctx, me.ID, p1.ID)
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, p2.ID, me.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, me.ID, p2.ID, connections.RespondRequest{Action: connections.ActionAccept})
	require.NoError(t, err)

	all, err := svc.List(ctx, me.ID, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, all.Connections, 2)
	assert.Equal(t, int64(2), all.Pagination.TotalCount)

	accepted, err := svc.List(ctx, me.ID, db.ConnectionAccepted, 1, 10)
	require.NoError(t, err)
	require.Len(t, accepted.Connections, 1)
	assert.Equal(t, p2.ID, accepted.Connections[0].User.ID)

	_, err = svc.List(ctx, me.ID, "weird", 1, 10)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	require.NoError(t, svc.Remove(ctx, p1.ID, me.ID))
	err = svc.Remove(ctx, p1.ID, me.ID)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))

	_, err = svc.SendRequest(ctx, p1.ID, me.ID)
	assert.NoError(t, err, "removed pair can connect again")
}
