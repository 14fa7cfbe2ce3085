package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/cache"
	"github.com/oggyb/matchchat/internal/config"
	"github.com/oggyb/matchchat/internal/db"
	"github.com/oggyb/matchchat/internal/logger"
	"github.com/oggyb/matchchat/internal/realtime"
	"github.com/oggyb/matchchat/internal/server"
	"github.com/oggyb/matchchat/internal/service/account"
	"github.com/oggyb/matchchat/internal/service/chat"
	"github.com/oggyb/matchchat/internal/service/connections"
	"github.com/oggyb/matchchat/internal/service/matcher"
	"github.com/oggyb/matchchat/internal/service/matches"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/service/presence"
	"github.com/oggyb/matchchat/internal/service/profile"
	"github.com/oggyb/matchchat/internal/service/questionnaire"
	"github.com/oggyb/matchchat/internal/service/socket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	if n, err := db.SeedQuestions(database); err != nil {
		log.Error("failed to seed questions", "err", err)
		os.Exit(1)
	} else if n > 0 {
		log.Info("seeded default questions", "count", n)
	}
	if n, err := db.SeedPersonalities(database); err != nil {
		log.Error("failed to seed personalities", "err", err)
		os.Exit(1)
	} else if n > 0 {
		log.Info("seeded personality catalog", "count", n)
	}

	if cfg.IsDevelopment() {
		var users int64
		if err := database.Model(&db.User{}).Count(&users).Error; err == nil && users == 0 {
			if err := db.SeedDemoData(database); err != nil {
				log.Error("failed to seed demo data", "err", err)
			}
		}
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(log.With("component", "realtime"))
	appCtx := app.New(cfg, database, redisCache, log, hub)

	notifySvc := notify.NewService(appCtx)
	presenceSvc := presence.NewService(appCtx, notifySvc)
	matchesSvc := matches.NewService(appCtx, notifySvc)
	chatSvc := chat.NewService(appCtx, notifySvc)

	httpServer := server.NewHTTPServer(appCtx,
		account.NewRegistrar(account.NewService(appCtx)),
		profile.NewRegistrar(profile.NewService(appCtx)),
		presence.NewRegistrar(presenceSvc),
		questionnaire.NewRegistrar(questionnaire.NewService(appCtx)),
		matcher.NewRegistrar(matcher.NewService(appCtx, notifySvc)),
		matches.NewRegistrar(matchesSvc),
		chat.NewRegistrar(chatSvc),
		notify.NewRegistrar(notifySvc),
		connections.NewRegistrar(connections.NewService(appCtx, notifySvc)),
	)
	socket.NewRegistrar(socket.NewGateway(appCtx, hub, presenceSvc, matchesSvc, chatSvc)).Mount(httpServer.App())

	health := server.NewHealthRegistrar(appCtx)
	health.Refresh(context.Background())
	grpcServer := server.NewGRPCServer(health)

	errs := make(chan error, 2)
	go func() {
		errs <- httpServer.Listen()
	}()
	go func() {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		errs <- server.StartGRPCServer(cfg, grpcServer)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			break loop
		case err := <-errs:
			log.Error("server stopped", "err", err)
			break loop
		case <-ticker.C:
			health.Refresh(ctx)
		}
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	grpcServer.GracefulStop()

	// let queued push and mail sends finish
	appCtx.Outbound.Wait()
	if err := redisCache.Close(); err != nil {
		log.Warn("redis close failed", "err", err)
	}
	log.Info("bye")
}
