package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/server"
	"github.com/oggyb/matchchat/internal/service/account"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/service/profile"
	"github.com/oggyb/matchchat/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, app *fiber.App, method, path, token, body string) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

// failing serves fixed errors so the error handler can be checked.
type failing struct{}

func (failing) RegisterRoutes(_, protected fiber.Router) {
	protected.Get("/fail/limited", func(*fiber.Ctx) error {
		return svcErr.RateLimited(90*time.Second, "slow down")
	})
	protected.Get("/fail/storage", func(*fiber.Ctx) error {
		return svcErr.Storage(assert.AnError, "db exploded")
	})
	protected.Get("/fail/missing", func(*fiber.Ctx) error {
		return svcErr.NotFound("no such thing")
	})
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	env := testutil.NewEnv(t)
	app := server.NewHTTPServer(env.App).App()

	resp, body := do(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	resp, _ = do(t, app, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.Redis.Close()
	resp, body = do(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestHTTP_AuthBoundary(t *testing.T) {
	env := testutil.NewEnv(t)
	app := server.NewHTTPServer(env.App,
		account.NewRegistrar(account.NewService(env.App)),
		profile.NewRegistrar(profile.NewService(env.App)),
		notify.NewRegistrar(notify.NewService(env.App)),
	).App()
	u := env.CreateUser(t, "Lea", "female")

	resp, _ := do(t, app, http.MethodGet, "/api/v1/user/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/user/profile", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := do(t, app, http.MethodGet, "/api/v1/user/profile", env.Token(t, u.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.Equal(t, "Lea", p.Name)

	resp, body = do(t, app, http.MethodGet, "/api/v1/personality", env.Token(t, u.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var traits []profile.Trait
	require.NoError(t, json.Unmarshal(body.Data, &traits))
	require.NotEmpty(t, traits)

	resp, body = do(t, app, http.MethodPut, "/api/v1/user/profile", env.Token(t, u.ID),
		fmt.Sprintf(`{"traits":[%d]}`, traits[0].ID))
	require.Equal(t, http.StatusOK, resp.StatusCode, body.Message)
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.Equal(t, []profile.Trait{traits[0]}, p.Traits)

	// auth routes need no token
	resp, body = do(t, app, http.MethodPost, "/api/v1/auth/login", "", `{"email":"lea@example.com","password":"password"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body.Message)
	var sess account.Session
	require.NoError(t, json.Unmarshal(body.Data, &sess))
	assert.NotEmpty(t, sess.Token)

	resp, body = do(t, app, http.MethodPost, "/api/v1/auth/login", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body.Message)

	resp, body = do(t, app, http.MethodGet, "/api/v1/notifications/unread-count", sess.Token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":0}`, string(body.Data))
}

func TestHTTP_ErrorMapping(t *testing.T) {
	env := testutil.NewEnv(t)
	app := server.NewHTTPServer(env.App, failing{}).App()
	token := env.Token(t, 1)

	resp, body := do(t, app, http.MethodGet, "/api/v1/fail/limited", token, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "90", resp.Header.Get("Retry-After"))
	assert.Equal(t, "slow down", body.Message)

	resp, body = do(t, app, http.MethodGet, "/api/v1/fail/storage", token, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", body.Message)

	resp, body = do(t, app, http.MethodGet, "/api/v1/fail/missing", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestGRPC_Health(t *testing.T) {
	env := testutil.NewEnv(t)
	hr := server.NewHealthRegistrar(env.App)
	require.True(t, hr.Refresh(context.Background()))

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(hr)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	res, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.Status)

	env.Redis.Close()
	assert.False(t, hr.Refresh(context.Background()))
	res, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, res.Status)
}
