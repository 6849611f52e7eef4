// Package app wires the webhook receiver, the relay, and the subscriber hub
// into one process serving a single listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/otiai10/payrelay/internal/api"
	"github.com/otiai10/payrelay/internal/config"
	"github.com/otiai10/payrelay/internal/receiver"
	"github.com/otiai10/payrelay/internal/relay"
	"github.com/otiai10/payrelay/internal/signature"
	"github.com/otiai10/payrelay/internal/subscriber"
)

// DefaultShutdownTimeout bounds the graceful HTTP shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// App is the main application orchestrator.
type App struct {
	config          *config.Config
	verifier        *signature.Verifier
	hub             *subscriber.Hub
	relay           *relay.Relay
	server          *api.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	hubOpts         []subscriber.HubOption
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithListener serves on l instead of binding cfg.Addr().
func WithListener(l net.Listener) Option {
	return func(a *App) {
		a.listener = l
	}
}

// WithShutdownTimeout overrides DefaultShutdownTimeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		a.shutdownTimeout = d
	}
}

// WithHubOptions passes extra options to the subscriber hub.
func WithHubOptions(opts ...subscriber.HubOption) Option {
	return func(a *App) {
		a.hubOpts = append(a.hubOpts, opts...)
	}
}

// NewApp builds every component from cfg. It does not bind the listener.
//
// Example:
//
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("invalid configuration")
//	}
//	a, err := app.NewApp(cfg)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("failed to build app")
//	}
//	err = a.Run(ctx)
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := subscriber.ParsePolicy(cfg.Relay.Policy)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:          cfg,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.verifier = signature.NewVerifier(cfg.Signature.Secret,
		signature.WithTolerance(time.Duration(cfg.Signature.ToleranceSeconds)*time.Second),
		signature.WithFutureRejection(cfg.Signature.RejectFuture),
	)
	a.hub = subscriber.NewHub(append([]subscriber.HubOption{subscriber.WithPolicy(policy)}, a.hubOpts...)...)
	a.relay = relay.New(a.hub, relay.WithQueueSize(cfg.Relay.QueueSize))

	handler := receiver.NewHandler(a.verifier, a.relay,
		receiver.WithMaxBodyBytes(cfg.Receiver.MaxBodyBytes),
	)
	router := api.NewRouter(api.RouterConfig{
		Receiver: handler,
		Hub:      a.hub,
		Relay:    a.relay,
	})
	a.server = api.NewServer(cfg.Addr(), router)

	return a, nil
}

// Run binds the listener, serves until ctx is cancelled, then shuts the
// server down and closes every subscriber connection. A bind failure is
// returned before anything is served.
func (a *App) Run(ctx context.Context) error {
	l := a.listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", a.config.Addr())
		if err != nil {
			return fmt.Errorf("failed to bind %s: %w", a.config.Addr(), err)
		}
	}

	log.Info().
		Str("addr", l.Addr().String()).
		Str("policy", a.config.Relay.Policy).
		Int("tolerance_seconds", a.config.Signature.ToleranceSeconds).
		Int("queue_size", a.config.Relay.QueueSize).
		Msg("payrelay listening")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.relay.Run(gctx)
	})

	g.Go(func() error {
		return a.server.Serve(l)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		err := a.server.Shutdown(shutdownCtx)
		if cerr := a.hub.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}

// Addr returns the configured listen address.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.config.Addr()
}
