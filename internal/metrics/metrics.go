package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchchat_ws_active_connections",
		Help: "Active websocket connections",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchchat_messages_total",
		Help: "Chat send attempts by outcome",
	}, []string{"outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchchat_notifications_total",
		Help: "Persisted notifications by type",
	}, []string{"type"})

	MatchTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchchat_match_transitions_total",
		Help: "Match state transitions",
	}, []string{"transition"})

	OutboundFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchchat_outbound_failures_total",
		Help: "Failed push and mail deliveries",
	}, []string{"sender"})
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
