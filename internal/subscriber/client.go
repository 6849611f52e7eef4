package subscriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/payrelay/internal/relay"
)

const (
	// maxRetries is maximum number of connection retry attempts
	maxRetries = 10

	// initialRetryDelay is the starting delay for exponential backoff
	initialRetryDelay = 1 * time.Second

	// maxRetryDelay is the maximum delay between retries
	maxRetryDelay = 60 * time.Second
)

// Frame is a message received from the relay.
type Frame struct {
	// Kind is relay.KindError when the frame carries a verification failure.
	Kind relay.Kind
	// Data is the payload, or the error message without its prefix.
	Data       []byte
	ReceivedAt time.Time
}

// ParseFrame classifies a raw text frame sent by the Hub.
func ParseFrame(raw []byte) Frame {
	if msg, ok := strings.CutPrefix(string(raw), relay.ErrorFramePrefix); ok {
		return Frame{Kind: relay.KindError, Data: []byte(msg)}
	}
	return Frame{Kind: relay.KindEvent, Data: raw}
}

// Client is a downstream consumer of a relay. It reconnects with
// exponential backoff when the connection drops.
type Client struct {
	endpoint   string
	conn       *websocket.Conn
	frames     chan Frame
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.Mutex
	err        error
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry sets the number of connection attempts and the first backoff
// delay. Non-positive values keep the defaults.
func WithRetry(attempts int, initialDelay time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.maxRetries = attempts
		}
		if initialDelay > 0 {
			c.retryDelay = initialDelay
		}
	}
}

// NewClient creates a client for the relay WebSocket URL (ws:// or wss://).
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		frames:     make(chan Frame, 100),
		done:       make(chan struct{}),
		maxRetries: maxRetries,
		retryDelay: initialRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the relay and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		log.Error().Err(err).Str("endpoint", c.endpoint).Msg("failed to establish initial connection")
		return err
	}

	go c.readLoop(ctx)
	return nil
}

// Frames returns the channel of received frames. It is closed when the read
// loop stops; Err then reports why.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Err returns the error that stopped the read loop, or nil if it stopped
// because the client or its context was closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes a text frame to the relay. The relay ignores its content.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection and stops reconnecting.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// connect establishes the WebSocket connection with retry
func (c *Client) connect(ctx context.Context) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("client closed")
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
		if err == nil {
			c.mu.Lock()
			select {
			case <-c.done:
				c.mu.Unlock()
				_ = conn.Close()
				return fmt.Errorf("client closed")
			default:
			}
			c.conn = conn
			c.mu.Unlock()
			log.Info().Str("endpoint", c.endpoint).Msg("connected to relay")
			return nil
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Int("max", c.maxRetries).Msg("connection attempt failed")

		if attempt < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return fmt.Errorf("client closed")
			case <-time.After(delay):
				delay *= 2
				if delay > maxRetryDelay {
					delay = maxRetryDelay
				}
			}
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", c.maxRetries, lastErr)
}

// readLoop reads frames and reconnects on read errors
func (c *Client) readLoop(ctx context.Context) {
	defer close(c.frames)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if err := c.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-c.done:
					return
				default:
				}
				log.Error().Err(err).Msg("reconnection failed")
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				return
			}
			continue
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			log.Warn().Err(err).Msg("read error, reconnecting")
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			continue
		}

		if messageType != websocket.TextMessage {
			continue
		}

		frame := ParseFrame(data)
		frame.ReceivedAt = time.Now()

		select {
		case c.frames <- frame:
		default:
			log.Warn().Msg("frames channel full, dropping frame")
		}
	}
}
