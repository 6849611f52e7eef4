// Package subscriber manages the persistent WebSocket connections that
// receive relayed webhook events.
//
// The Hub owns the set of active subscribers. Two delivery policies exist:
//
//   - PolicyLastConnected: the most recent connection is the only delivery
//     target. Older connections stay open but stop receiving events.
//   - PolicyBroadcast: every attached connection receives every event.
//
// Inbound frames from subscribers are logged and otherwise ignored.
package subscriber

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/otiai10/payrelay/internal/relay"
)

// Policy selects which attached connections receive an event.
type Policy string

const (
	PolicyLastConnected Policy = "last"
	PolicyBroadcast     Policy = "broadcast"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyLastConnected, PolicyBroadcast:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unsupported relay policy: %q (supported: last, broadcast)", s)
	}
}

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second

	// maxInboundMessageSize limits frames read from subscribers.
	maxInboundMessageSize = 64 << 10
)

// Subscriber is an attached downstream connection.
type Subscriber struct {
	ID         string
	RemoteAddr string
	AttachedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// write sends a frame with a deadline. Writes on one connection are serialized.
func (s *Subscriber) write(messageType int, data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// Info is a read-only view of a Subscriber.
type Info struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	AttachedAt time.Time `json:"attachedAt"`
}

// Hub tracks active subscribers and delivers relay events to them.
//
// Hub is safe for concurrent use. Attach, Detach and Deliver are serialized
// by a single mutex, so a connection is never written to while it is being
// removed.
type Hub struct {
	mu     sync.Mutex
	policy Policy
	active []*Subscriber
	conns  map[*Subscriber]struct{} // every open connection, active or not
	closed bool

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	now          func() time.Time
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPolicy sets the delivery policy.
func WithPolicy(p Policy) HubOption {
	return func(h *Hub) {
		h.policy = p
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.writeTimeout = d
	}
}

// WithPingInterval sets the keep-alive ping period. The read deadline is
// twice the interval and is extended by every pong. Values below 1 are ignored.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewHub creates a Hub. The default policy is PolicyLastConnected.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		policy:       PolicyLastConnected,
		conns:        make(map[*Subscriber]struct{}),
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		now:          time.Now,
		upgrader: websocket.Upgrader{
			// Subscribers are not authenticated; any origin may attach.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Policy returns the configured delivery policy.
func (h *Hub) Policy() Policy {
	return h.policy
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	sub := h.Attach(conn)
	if sub == nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	done := make(chan struct{})
	go h.keepAlive(sub, done)
	h.readLoop(sub)
	close(done)

	h.Detach(sub)
	_ = conn.Close()
}

// Attach registers conn as an active subscriber. It returns nil when the
// hub is closed.
func (h *Hub) Attach(conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		ID:         uuid.New().String(),
		RemoteAddr: conn.RemoteAddr().String(),
		AttachedAt: h.now(),
		conn:       conn,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	h.conns[sub] = struct{}{}
	switch h.policy {
	case PolicyBroadcast:
		h.active = append(h.active, sub)
	default:
		if len(h.active) > 0 {
			log.Info().Str("subscriber", h.active[0].ID).Str("replacedBy", sub.ID).Msg("subscriber superseded")
		}
		h.active = []*Subscriber{sub}
	}

	log.Info().Str("subscriber", sub.ID).Str("remote", sub.RemoteAddr).Str("policy", string(h.policy)).Msg("subscriber attached")
	return sub
}

// Detach removes sub from the active set. Detaching a subscriber that is not
// active is a no-op apart from forgetting its connection.
func (h *Hub) Detach(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(sub)
}

func (h *Hub) detachLocked(sub *Subscriber) {
	delete(h.conns, sub)
	for i, s := range h.active {
		if s == sub {
			h.active = append(h.active[:i:i], h.active[i+1:]...)
			log.Info().Str("subscriber", sub.ID).Int("active", len(h.active)).Msg("subscriber detached")
			return
		}
	}
}

// Deliver writes the event frame to the active subscribers selected by the
// policy. A failed write closes and detaches that subscriber; the failure is
// not reported to the caller. With no subscriber attached the event is dropped.
func (h *Hub) Deliver(e relay.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.active) == 0 {
		log.Debug().Uint64("seq", e.Seq).Stringer("kind", e.Kind).Msg("no subscriber attached, dropping event")
		return
	}

	frame := e.Frame()
	targets := append([]*Subscriber(nil), h.active...)
	for _, sub := range targets {
		if err := sub.write(websocket.TextMessage, frame, h.writeTimeout); err != nil {
			log.Warn().Err(err).Str("subscriber", sub.ID).Uint64("seq", e.Seq).Msg("delivery failed, detaching subscriber")
			_ = sub.conn.Close()
			h.detachLocked(sub)
			continue
		}
		log.Debug().Str("subscriber", sub.ID).Uint64("seq", e.Seq).Stringer("kind", e.Kind).Msg("event delivered")
	}
}

// Subscribers returns a snapshot of the active subscribers.
func (h *Hub) Subscribers() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]Info, 0, len(h.active))
	for _, s := range h.active {
		infos = append(infos, Info{ID: s.ID, RemoteAddr: s.RemoteAddr, AttachedAt: s.AttachedAt})
	}
	return infos
}

// Close sends a close frame to every open connection and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	for sub := range h.conns {
		sub.writeMu.Lock()
		_ = sub.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		sub.writeMu.Unlock()
		_ = sub.conn.Close()
	}
	h.conns = make(map[*Subscriber]struct{})
	h.active = nil
	return nil
}

// readLoop consumes inbound frames until the connection fails.
func (h *Hub) readLoop(sub *Subscriber) {
	conn := sub.conn
	conn.SetReadLimit(maxInboundMessageSize)
	readWait := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Err(err).Str("subscriber", sub.ID).Msg("subscriber connection lost")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		log.Debug().Str("subscriber", sub.ID).Int("type", messageType).Int("bytes", len(data)).Msg("message from subscriber ignored")
	}
}

// keepAlive pings the subscriber until done is closed or a ping fails.
func (h *Hub) keepAlive(sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sub.write(websocket.PingMessage, nil, h.writeTimeout); err != nil {
				log.Debug().Err(err).Str("subscriber", sub.ID).Msg("ping failed")
				return
			}
		}
	}
}
