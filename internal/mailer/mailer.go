package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/oggyb/matchchat/internal/config"
)

// Sender delivers OTP emails.
type Sender interface {
	SendOTP(ctx context.Context, to, name, code string) error
}

func New(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.Mail.Endpoint == "" {
		return &LogSender{log: log}
	}
	return NewHTTPSender(cfg.Mail.Endpoint, cfg.Mail.APIKey, cfg.Mail.From, cfg.Mail.Timeout, log)
}

// LogSender writes the code to the log instead of sending it.
type LogSender struct {
	log *slog.Logger
}

func (s *LogSender) SendOTP(_ context.Context, to, _, code string) error {
	s.log.Info("otp email (log only)", "to", to, "code", code)
	return nil
}

// HTTPSender posts a transactional email to a provider API.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

func NewHTTPSender(endpoint, apiKey, from string, timeout time.Duration, log *slog.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mail",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

type email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (s *HTTPSender) SendOTP(ctx context.Context, to, name, code string) error {
	body, err := json.Marshal(email{
		From:    s.from,
		To:      to,
		Subject: "Your verification code",
		Text:    fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in 10 minutes.\n", name, code),
	})
	if err != nil {
		return err
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("mail provider status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
