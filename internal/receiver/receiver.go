// Package receiver implements the HTTP endpoint that accepts webhook
// notifications from the payment platform.
//
// Every POST is buffered in full, verified against the Pay-Signature header,
// answered, and then published to the relay: authenticated payloads as
// events, failures as error messages. The caller only learns success or
// failure; the reason is relayed to the subscriber and never echoed back.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/otiai10/payrelay/internal/signature"
)

const (
	// DefaultMaxBodyBytes is the default limit for webhook bodies.
	DefaultMaxBodyBytes = 1 << 20

	// SuccessBody is written for authenticated requests.
	SuccessBody = "post received"

	// FailureBody is written for every rejected request.
	FailureBody = "invalid webhook request"
)

// Verifier decides whether a request is authentic.
type Verifier interface {
	Verify(values []string, body []byte) signature.Result
}

// Publisher receives the outcome of each verified request.
type Publisher interface {
	PublishEvent(payload []byte) bool
	PublishError(message string) bool
}

// Handler is the webhook endpoint.
type Handler struct {
	verifier     Verifier
	publisher    Publisher
	maxBodyBytes int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodyBytes limits the accepted body size. Values below 1 are ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler creates the webhook endpoint.
func NewHandler(v Verifier, p Publisher, opts ...Option) *Handler {
	h := &Handler{
		verifier:     v,
		publisher:    p,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles one webhook delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			log.Warn().Int64("limit", maxErr.Limit).Str("remote", r.RemoteAddr).Msg("webhook body too large")
			http.Error(w, FailureBody, http.StatusRequestEntityTooLarge)
			h.publisher.PublishError(fmt.Sprintf("Invalid webhook request: body exceeds %d bytes", maxErr.Limit))
			return
		}
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("failed to read webhook body")
		http.Error(w, FailureBody, http.StatusBadRequest)
		h.publisher.PublishError("Invalid webhook request: failed to read body")
		return
	}

	values := r.Header.Values(signature.HeaderName)
	result := h.verifier.Verify(values, body)

	if !result.Valid() {
		log.Warn().
			Str("remote", r.RemoteAddr).
			Stringer("result", result.Kind).
			Int("bytes", len(body)).
			Msg(result.Message())
		http.Error(w, FailureBody, http.StatusBadRequest)
		h.publisher.PublishError(result.Message())
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Int("bytes", len(body)).Msg("valid webhook request")
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(SuccessBody))
	h.publisher.PublishEvent(result.Payload)
}
