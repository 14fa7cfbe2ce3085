package server

import (
	"context"
	"time"

	"github.com/oggyb/matchchat/internal/app"
)

const checkTimeout = 2 * time.Second

// Check pings the database and Redis. Values are "ok" or the error text.
func Check(ctx context.Context, appCtx *app.AppContext) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	out := map[string]string{"db": "ok", "redis": "ok"}
	sqlDB, err := appCtx.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		out["db"] = err.Error()
	}
	if err := appCtx.RedisCache.Ping(ctx); err != nil {
		out["redis"] = err.Error()
	}
	return out
}

func Healthy(checks map[string]string) bool {
	for _, v := range checks {
		if v != "ok" {
			return false
		}
	}
	return true
}
