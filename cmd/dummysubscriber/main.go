package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/payrelay/internal/relay"
	"github.com/otiai10/payrelay/internal/subscriber"
)

func main() {
	_ = godotenv.Load(".env.localdev")

	endpoint := flag.String("url", defaultEndpoint(), "relay WebSocket URL")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("endpoint", *endpoint).Msg("waiting for payment events...")
	if err := run(ctx, *endpoint, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("subscriber stopped")
	}
}

// defaultEndpoint points at a relay started with the same environment
func defaultEndpoint() string {
	port := os.Getenv("WEBHOOK_PORT")
	if port == "" {
		port = "8080"
	}
	return "ws://127.0.0.1:" + port + "/"
}

// run prints every frame received from the relay until ctx is done or the
// client gives up reconnecting
func run(ctx context.Context, endpoint string, out io.Writer, opts ...subscriber.ClientOption) error {
	client := subscriber.NewClient(endpoint, opts...)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-client.Frames():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("lost connection to relay: %w", client.Err())
			}
			fmt.Fprintln(out, formatFrame(f))
		}
	}
}

// formatFrame renders a frame for the terminal, indenting JSON payloads
func formatFrame(f subscriber.Frame) string {
	stamp := f.ReceivedAt.Format("15:04:05")
	if f.Kind == relay.KindError {
		return fmt.Sprintf("=== Rejected at %s ===\n%s", stamp, f.Data)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, f.Data, "", "  "); err != nil {
		return fmt.Sprintf("=== Event received at %s (not JSON) ===\n%s", stamp, f.Data)
	}
	return fmt.Sprintf("=== Event received at %s ===\n%s", stamp, pretty.String())
}
