package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	cfg := New()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/matchchat")
	assert.Equal(t, "50051", cfg.GRPC.Port)
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_SOURCE", "yes")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("JWT_TOKEN_TTL", "15m")
	t.Setenv("WS_EVENTS_PER_SECOND", "2.5")

	cfg := New()

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Source)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "u:p@tcp(db:3306)/x", cfg.DB.DSN)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.InDelta(t, 2.5, cfg.Realtime.EventsPerSecond, 0.0001)
}

func TestNew_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=9999\nAPP_ENV=production\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg := New()

	assert.Equal(t, "9999", cfg.HTTP.Port)
	assert.False(t, cfg.IsDevelopment())
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}
