package relay

import (
	"time"
)

// Kind distinguishes authenticated payloads from verification failures.
type Kind int

const (
	KindEvent Kind = iota
	KindError
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "event"
}

// ErrorFramePrefix starts every error frame sent to subscribers.
const ErrorFramePrefix = "error: "

// Event is the unit forwarded to subscribers. It is never persisted.
type Event struct {
	Kind    Kind
	Payload []byte // KindEvent
	Message string // KindError

	// Seq and PublishedAt are assigned by the Relay on publish.
	Seq         uint64
	PublishedAt time.Time
}

// NewEvent wraps an authenticated payload.
func NewEvent(payload []byte) Event {
	return Event{Kind: KindEvent, Payload: payload}
}

// NewError wraps a verification failure description.
func NewError(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// Frame renders the textual frame written to subscribers:
// the raw payload for events and "error: <message>" for errors.
func (e Event) Frame() []byte {
	if e.Kind == KindError {
		return []byte(ErrorFramePrefix + e.Message)
	}
	return e.Payload
}
