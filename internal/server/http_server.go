package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/oggyb/matchchat/internal/app"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/metrics"
	"github.com/oggyb/matchchat/internal/utils/response"
)

const (
	apiPrefix  = "/api/v1"
	authPrefix = apiPrefix + "/auth"
)

// HTTPServer is the REST front end.
type HTTPServer struct {
	appCtx *app.AppContext
	app    *fiber.App
}

// NewHTTPServer wires middleware, ops endpoints and every registrar's routes.
func NewHTTPServer(appCtx *app.AppContext, registrars ...RouteRegistrar) *HTTPServer {
	cfg := appCtx.Config
	bodyLimit := cfg.HTTP.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}

	f := fiber.New(fiber.Config{
		AppName:               cfg.Log.Component,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(appCtx.Logger),
	})
	f.Use(recover.New())
	f.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	f.Use(cors.New(cors.Config{AllowOrigins: cfg.HTTP.CORSOrigins}))
	f.Use(accessLog(appCtx.Logger))

	f.Get("/health", func(c *fiber.Ctx) error {
		checks := Check(c.UserContext(), appCtx)
		if !Healthy(checks) {
			return response.Write(c, fiber.StatusServiceUnavailable, "unhealthy", checks)
		}
		return response.OK(c, "ok", checks)
	})
	f.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := f.Group(apiPrefix)
	public := api.Group("/auth")
	protected := api.Group("", RequireAuth(AuthConfig{
		Tokens: appCtx.Tokens,
		Next:   skipPrefix(authPrefix),
	}))
	for _, r := range registrars {
		r.RegisterRoutes(public, protected)
	}

	return &HTTPServer{appCtx: appCtx, app: f}
}

// App exposes the fiber app for extra mounts and tests.
func (s *HTTPServer) App() *fiber.App { return s.app }

func (s *HTTPServer) Listen() error {
	addr := fmt.Sprintf("%s:%s", s.appCtx.Config.HTTP.Host, s.appCtx.Config.HTTP.Port)
	s.appCtx.Logger.Info("starting HTTP server", "addr", addr)
	return s.app.Listen(addr)
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders every handler error in the response envelope.
func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return response.Write(c, fe.Code, fe.Message, nil)
		}

		var se *svcErr.Error
		if errors.As(err, &se) && se.RetryAfter > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(se.RetryAfter.Seconds()))))
		}
		status := svcErr.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
		}
		return response.Write(c, status, svcErr.PublicMessage(err), nil)
	}
}
