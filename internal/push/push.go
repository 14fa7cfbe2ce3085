package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/oggyb/matchchat/internal/config"
)

// Message is a device notification.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers a message to device tokens.
type Sender interface {
	Send(ctx context.Context, tokens []string, msg Message) error
}

// New picks the HTTP sender when an endpoint is configured, else a log sender.
func New(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.Push.Endpoint == "" {
		return &LogSender{log: log}
	}
	return NewHTTPSender(HTTPOptions{
		Endpoint:   cfg.Push.Endpoint,
		APIKey:     cfg.Push.APIKey,
		Timeout:    cfg.Push.Timeout,
		MaxRetries: cfg.Push.MaxRetries,
	}, log)
}

// LogSender only logs. Used when no push provider is configured.
type LogSender struct {
	log *slog.Logger
}

func (s *LogSender) Send(_ context.Context, tokens []string, msg Message) error {
	s.log.Info("push (log only)", "tokens", len(tokens), "title", msg.Title)
	return nil
}

type HTTPOptions struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// InitialInterval overrides the first retry delay.
	InitialInterval time.Duration
}

// HTTPSender posts {tokens, notification} JSON to a provider endpoint.
// Retries 5xx and transport errors with exponential backoff; a circuit
// breaker stops hammering a provider that keeps failing.
type HTTPSender struct {
	opts   HTTPOptions
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewHTTPSender(opts HTTPOptions, log *slog.Logger) *HTTPSender {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	st := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &HTTPSender{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

type payload struct {
	Tokens       []string `json:"tokens"`
	Notification Message  `json:"notification"`
}

func (s *HTTPSender) Send(ctx context.Context, tokens []string, msg Message) error {
	if len(tokens) == 0 {
		return nil
	}
	body, err := json.Marshal(payload{Tokens: tokens, Notification: msg})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.postWithRetry(ctx, body)
	})
	return err
}

func (s *HTTPSender) postWithRetry(ctx context.Context, body []byte) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(s.opts.MaxRetries, 0))), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("push provider status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("push rejected with status %d", resp.StatusCode))
		}
		return nil
	}, b)
}
