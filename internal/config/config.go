package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type LogConfig struct {
	Level     string
	Format    string
	Component string
	Source    bool
}

type Config struct {
	Log LogConfig

	App struct {
		ENV string
	}

	DB struct {
		Driver     string
		DSN        string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SQLitePath string
		LogLevel   string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host        string
		Port        string
		CORSOrigins string
		BodyLimit   int
	}

	Auth struct {
		JWTSecret string
		Issuer    string
		TokenTTL  time.Duration
	}

	Mail struct {
		Endpoint string
		APIKey   string
		From     string
		Timeout  time.Duration
	}

	Push struct {
		Endpoint   string
		APIKey     string
		Timeout    time.Duration
		MaxRetries int
	}

	Realtime struct {
		EventsPerSecond float64
		Burst           int
		SendBuffer      int
	}
}

var defaults = map[string]any{
	"APP_ENV":       "development",
	"LOG_LEVEL":     "info",
	"LOG_FORMAT":    "text",
	"LOG_COMPONENT": "matchchat",

	"DB_DRIVER":    "mysql",
	"DB_HOST":      "localhost",
	"DB_PORT":      "3306",
	"DB_USER":      "root",
	"DB_PASSWORD":  "root",
	"DB_NAME":      "matchchat",
	"SQLITE_PATH":  "matchchat.db",
	"DB_LOG_LEVEL": "warn",

	"REDIS_ADDR": "localhost:6379",
	"REDIS_DB":   0,

	"GRPC_HOST": "127.0.0.1",
	"GRPC_PORT": "50051",

	"HTTP_HOST":       "0.0.0.0",
	"HTTP_PORT":       "8080",
	"HTTP_CORS":       "*",
	"HTTP_BODY_LIMIT": 1 << 20,

	"JWT_SECRET":    "change-me",
	"JWT_ISSUER":    "matchchat",
	"JWT_TOKEN_TTL": "720h",

	"MAIL_FROM":    "no-reply@matchchat.local",
	"MAIL_TIMEOUT": "5s",

	"PUSH_TIMEOUT":     "5s",
	"PUSH_MAX_RETRIES": 3,

	"WS_EVENTS_PER_SECOND": 10.0,
	"WS_BURST":             20,
	"WS_SEND_BUFFER":       256,
}

// New builds the configuration from the environment. A .env file in the
// working directory and a file named by CONFIG_FILE are read first when present;
// real environment variables win over both.
func New() *Config {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if f := strings.TrimSpace(os.Getenv("CONFIG_FILE")); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("config: ignoring %s: %v", f, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{}

	cfg.App.ENV = v.GetString("APP_ENV")

	// Logger
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Format = v.GetString("LOG_FORMAT")
	cfg.Log.Component = v.GetString("LOG_COMPONENT")
	cfg.Log.Source = isTruthy(v.GetString("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.DB.SQLitePath = v.GetString("SQLITE_PATH")
	cfg.DB.LogLevel = v.GetString("DB_LOG_LEVEL")
	cfg.DB.DSN = v.GetString("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = v.GetString("DB_HOST")
		cfg.DB.Port = v.GetString("DB_PORT")
		cfg.DB.User = v.GetString("DB_USER")
		cfg.DB.Password = v.GetString("DB_PASSWORD")
		cfg.DB.Name = v.GetString("DB_NAME")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	// gRPC
	cfg.GRPC.Host = v.GetString("GRPC_HOST")
	cfg.GRPC.Port = v.GetString("GRPC_PORT")

	// HTTP
	cfg.HTTP.Host = v.GetString("HTTP_HOST")
	cfg.HTTP.Port = v.GetString("HTTP_PORT")
	cfg.HTTP.CORSOrigins = v.GetString("HTTP_CORS")
	cfg.HTTP.BodyLimit = v.GetInt("HTTP_BODY_LIMIT")

	// Auth
	cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	cfg.Auth.Issuer = v.GetString("JWT_ISSUER")
	cfg.Auth.TokenTTL = v.GetDuration("JWT_TOKEN_TTL")

	// Outbound senders. Empty endpoints fall back to log-only senders.
	cfg.Mail.Endpoint = v.GetString("MAIL_ENDPOINT")
	cfg.Mail.APIKey = v.GetString("MAIL_API_KEY")
	cfg.Mail.From = v.GetString("MAIL_FROM")
	cfg.Mail.Timeout = v.GetDuration("MAIL_TIMEOUT")

	cfg.Push.Endpoint = v.GetString("PUSH_ENDPOINT")
	cfg.Push.APIKey = v.GetString("PUSH_API_KEY")
	cfg.Push.Timeout = v.GetDuration("PUSH_TIMEOUT")
	cfg.Push.MaxRetries = v.GetInt("PUSH_MAX_RETRIES")

	// Realtime
	cfg.Realtime.EventsPerSecond = v.GetFloat64("WS_EVENTS_PER_SECOND")
	cfg.Realtime.Burst = v.GetInt("WS_BURST")
	cfg.Realtime.SendBuffer = v.GetInt("WS_SEND_BUFFER")

	return cfg
}

// IsDevelopment reports whether demo seeding and verbose defaults apply.
func (c *Config) IsDevelopment() bool {
	return c.App.ENV == "development"
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
