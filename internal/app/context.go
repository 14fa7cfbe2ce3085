package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/matchchat/internal/auth"
	"github.com/oggyb/matchchat/internal/cache"
	"github.com/oggyb/matchchat/internal/config"
	"github.com/oggyb/matchchat/internal/mailer"
	"github.com/oggyb/matchchat/internal/outbound"
	"github.com/oggyb/matchchat/internal/push"
	"github.com/oggyb/matchchat/internal/realtime"
)

// AppContext holds shared dependencies (DB, Redis, Logger, realtime hub,
// outbound senders). Services build their repositories from it.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Presence   *cache.PresenceStore
	Logger     *slog.Logger
	Realtime   realtime.Emitter
	Tokens     *auth.TokenManager
	Push       push.Sender
	Mail       mailer.Sender
	Outbound   *outbound.Dispatcher
}

// New creates a new AppContext. The emitter is the live hub the websocket
// gateway registers clients on.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, emitter realtime.Emitter) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Presence:   cache.NewPresenceStore(rdb),
		Logger:     logger,
		Realtime:   emitter,
		Tokens:     auth.NewTokenManager(cfg),
		Push:       push.New(cfg, logger),
		Mail:       mailer.New(cfg, logger),
		Outbound:   outbound.NewDispatcher(logger, 30*time.Second),
	}
}
