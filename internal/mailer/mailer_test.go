package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchchat/internal/logger"
)

func TestHTTPSender_SendsOTP(t *testing.T) {
	var got email
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret", "no-reply@test", time.Second, logger.Discard())
	require.NoError(t, s.SendOTP(context.Background(), "ana@test.com", "Ana", "123456"))

	assert.Equal(t, "ana@test.com", got.To)
	assert.Equal(t, "no-reply@test", got.From)
	assert.Contains(t, got.Text, "123456")
}

func TestHTTPSender_BreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "", "", time.Second, logger.Discard())
	for i := 0; i < 3; i++ {
		assert.Error(t, s.SendOTP(context.Background(), "a@b.c", "A", "1"))
	}
	err := s.SendOTP(context.Background(), "a@b.c", "A", "1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
