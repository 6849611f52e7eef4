// Package relay is the in-process publish point between the webhook receiver
// and the subscriber channel.
//
// The receiver publishes on two topics, authenticated payloads and
// verification failures. Both go through a single bounded queue so relay
// order equals publish order, and a single consumer goroutine hands each
// event to the Deliverer.
//
// Publishing never blocks. When the queue is full the event is dropped:
// the relay forwards live traffic and offers no durability.
//
// Example usage:
//
//	r := relay.New(hub, relay.WithQueueSize(64))
//	go r.Run(ctx)
//
//	r.PublishEvent(body)
//	r.PublishError("Invalid Signature")
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultQueueSize bounds the number of events waiting for delivery.
const DefaultQueueSize = 64

// Deliverer receives events from the relay consumer.
// Deliver must not retain the event beyond the call.
type Deliverer interface {
	Deliver(e Event)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(e Event)

// Deliver calls f(e).
func (f DelivererFunc) Deliver(e Event) {
	f(e)
}

// Stats are cumulative relay counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// Relay queues events and delivers them from a single goroutine.
type Relay struct {
	queue     chan Event
	sink      Deliverer
	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	now       func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithQueueSize sets the queue bound. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// New creates a Relay delivering to sink.
func New(sink Deliverer, opts ...Option) *Relay {
	r := &Relay{
		queue: make(chan Event, DefaultQueueSize),
		sink:  sink,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PublishEvent publishes an authenticated payload.
func (r *Relay) PublishEvent(payload []byte) bool {
	return r.Publish(NewEvent(payload))
}

// PublishError publishes a verification failure.
func (r *Relay) PublishError(message string) bool {
	return r.Publish(NewError(message))
}

// Publish assigns a sequence number and enqueues e without blocking.
// It reports whether the event was queued.
func (r *Relay) Publish(e Event) bool {
	e.Seq = r.seq.Add(1)
	e.PublishedAt = r.now()

	select {
	case r.queue <- e:
		r.published.Add(1)
		return true
	default:
		r.dropped.Add(1)
		log.Warn().Uint64("seq", e.Seq).Stringer("kind", e.Kind).Msg("relay queue full, dropping event")
		return false
	}
}

// Run delivers queued events until ctx is cancelled.
// Events still queued at cancellation are discarded.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("pending", len(r.queue)).Msg("relay stopped")
			return nil
		case e := <-r.queue:
			r.sink.Deliver(e)
		}
	}
}

// Stats returns the current counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Dropped:   r.dropped.Load(),
	}
}
