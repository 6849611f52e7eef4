// Package webhook sends signed webhook notifications the way the payment
// platform does, so a running relay can be exercised locally.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/otiai10/payrelay/internal/signature"
)

// UserAgent is sent with every delivery.
const UserAgent = "payrelay/1.0"

// DeliveryResult contains the result of a webhook delivery attempt.
type DeliveryResult struct {
	URL          string        // The webhook URL that was targeted
	StatusCode   int           // HTTP status code (0 if request failed)
	Success      bool          // True if status code is 2xx
	Body         string        // Response body, truncated to maxResponseBody
	ErrorMessage string        // Error description if delivery failed
	ResponseTime time.Duration // Time taken for the request
}

// maxResponseBody caps how much of the receiver's answer is kept.
const maxResponseBody = 512

// Sender posts payloads with a freshly computed Pay-Signature header.
//
// Sender is safe for concurrent use by multiple goroutines.
type Sender struct {
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// SenderOption configures the Sender
type SenderOption func(*Sender)

// WithTimeout sets the HTTP request timeout.
// Default timeout is 10 seconds if not specified.
func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		s.timeout = d
	}
}

// WithClock sets the source of the signature timestamp.
// Useful for sending deliberately stale requests.
func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		s.now = now
	}
}

// NewSender creates a new webhook sender with the given options.
//
// Example:
//
//	sender := webhook.NewSender(webhook.WithTimeout(5 * time.Second))
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client = &http.Client{
		Timeout: s.timeout,
	}
	return s
}

// Send posts payload to url.
//
// The request includes:
//   - Content-Type: application/json
//   - Pay-Signature: t=<unix>,v1=<hex HMAC-SHA256 of "t.payload">
//   - User-Agent: payrelay/1.0
//
// Success is defined as receiving a 2xx HTTP status code.
func (s *Sender) Send(ctx context.Context, url, secret string, payload []byte) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{
		URL: url,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to create request: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, signature.Sign(secret, s.now(), payload))
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("request failed: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	result.StatusCode = resp.StatusCode
	result.Body = string(body)
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	result.ResponseTime = time.Since(start)

	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("unexpected status: %d", resp.StatusCode)
	}

	return result
}

// SendAll sends a payload to multiple targets concurrently.
// Results are in the same order as targets.
func (s *Sender) SendAll(ctx context.Context, targets []Target, payload []byte) []DeliveryResult {
	if len(targets) == 0 {
		return []DeliveryResult{}
	}

	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(index int, t Target) {
			defer wg.Done()
			results[index] = s.Send(ctx, t.URL, t.Secret, payload)
		}(i, target)
	}

	wg.Wait()
	return results
}

// Target represents a relay endpoint and the secret it verifies with.
type Target struct {
	URL    string
	Secret string
}
