package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/payrelay/internal/relay"
	"github.com/otiai10/payrelay/internal/subscriber"
	"github.com/otiai10/payrelay/internal/version"
)

// HealthPath is reserved and never reaches the webhook receiver
const HealthPath = "/health"

// Hub accepts subscriber connections and reports who is attached
type Hub interface {
	http.Handler
	Subscribers() []subscriber.Info
}

// StatsSource reports relay counters
type StatsSource interface {
	Stats() relay.Stats
}

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Receiver http.Handler
	Hub      Hub
	Relay    StatsSource
	Logger   *zerolog.Logger // nil uses the global logger
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	Hash        string `json:"hash"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// NewRouter creates the single handler serving webhooks, subscribers, and health
func NewRouter(cfg RouterConfig) http.Handler {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)

	r.Get(HealthPath, healthHandler(cfg))

	// Webhooks and subscribers share every other path. Non-GET requests to
	// HealthPath get chi's 405.
	dispatch := func(w http.ResponseWriter, req *http.Request) {
		if websocket.IsWebSocketUpgrade(req) {
			cfg.Hub.ServeHTTP(w, req)
			return
		}
		cfg.Receiver.ServeHTTP(w, req)
	}
	r.NotFound(dispatch)

	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Hash:   version.CommitHash,
		}
		if cfg.Hub != nil {
			resp.Subscribers = len(cfg.Hub.Subscribers())
		}
		if cfg.Relay != nil {
			stats := cfg.Relay.Stats()
			resp.Published = stats.Published
			resp.Dropped = stats.Dropped
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
