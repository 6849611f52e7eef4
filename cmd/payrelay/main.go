package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/payrelay/internal/app"
	"github.com/otiai10/payrelay/internal/config"
	"github.com/otiai10/payrelay/internal/version"
)

func main() {
	// Load .env.localdev file if it exists (for local development)
	// Silently ignore if file doesn't exist (production uses real env vars)
	_ = godotenv.Load(".env.localdev")

	// Configuration errors are fatal before any socket is bound
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = newLogger(os.Stderr, cfg.Log)

	logStartup(log.Logger, cfg)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}

	log.Info().Msg("goodbye")
}

// logStartup records the effective configuration. The shared secret is
// reported by length only.
func logStartup(logger zerolog.Logger, cfg *config.Config) {
	logger.Info().
		Str("hash", version.CommitHash).
		Str("addr", cfg.Addr()).
		Str("policy", cfg.Relay.Policy).
		Int("tolerance_seconds", cfg.Signature.ToleranceSeconds).
		Int("secret_len", len(cfg.Signature.Secret)).
		Msg("payrelay - payment webhook relay")
}

// newLogger builds the process logger from the log section of the config.
// Validate has already rejected unknown levels and formats.
func newLogger(w io.Writer, lc config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if lc.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
