package signature

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78/webhook"
)

// ComputeSignature returns the raw v1 tag for payload signed at t.
// The v1 scheme is byte-compatible with Stripe's, so stripe-go's
// implementation is used directly.
func ComputeSignature(t time.Time, payload []byte, secret string) []byte {
	return webhook.ComputeSignature(t, payload, secret)
}

// Sign builds a complete Pay-Signature header value for payload.
//
// Example:
//
//	header := signature.Sign("sek", time.Now(), []byte(`{"a":1}`))
//	// header = "t=1700000000,v1=..."
func Sign(secret string, t time.Time, payload []byte) string {
	tag := ComputeSignature(t, payload, secret)
	return fmt.Sprintf("t=%d,%s=%s", t.Unix(), SchemeV1, hex.EncodeToString(tag))
}
