package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTolerance is the freshness window applied when none is configured.
const DefaultTolerance = 2 * time.Second

// Kind identifies the outcome of a verification.
type Kind int

const (
	KindValid Kind = iota
	KindInvalidSignature
	KindExpired
	KindMalformedHeader
	KindMissingHeader
)

func (k Kind) String() string {
	switch k {
	case KindValid:
		return "valid"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindExpired:
		return "expired"
	case KindMalformedHeader:
		return "malformed_header"
	case KindMissingHeader:
		return "missing_header"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of checking one inbound request.
// Only the fields belonging to Kind are set.
type Result struct {
	Kind Kind

	// Payload is the authenticated body (KindValid).
	Payload []byte
	// Age and Tolerance are in seconds (KindExpired).
	Age       int64
	Tolerance int64
	// Reason explains a KindMalformedHeader result.
	Reason string
}

// Valid reports whether the request was authenticated.
func (r Result) Valid() bool {
	return r.Kind == KindValid
}

// Message returns the description relayed to subscribers for a failed result.
func (r Result) Message() string {
	switch r.Kind {
	case KindValid:
		return "Valid webhook request"
	case KindInvalidSignature:
		return "Invalid Signature"
	case KindExpired:
		return fmt.Sprintf("Expired webhook request: %d > %d", r.Age, r.Tolerance)
	case KindMalformedHeader:
		return fmt.Sprintf("Invalid webhook request: malformed pay-signature header (%s)", r.Reason)
	case KindMissingHeader:
		return "Invalid webhook request: no pay-signature in header"
	default:
		return "Invalid webhook request"
	}
}

// Verify authenticates body against the Pay-Signature header values.
//
// values are the raw header values as returned by http.Header.Values; an empty
// slice means the header was absent. now and tolerance are in seconds. The
// function is pure: the clock is an argument.
//
// A timestamp in the future yields a negative age and passes the freshness
// check; Verifier can be configured to reject it.
func Verify(values []string, body, secret []byte, now, tolerance int64) Result {
	result, _ := verify(values, body, secret, now, tolerance)
	return result
}

// verify also returns the parsed header, nil when the header was missing or
// malformed.
func verify(values []string, body, secret []byte, now, tolerance int64) (Result, *Header) {
	if len(values) == 0 {
		return Result{Kind: KindMissingHeader}, nil
	}

	header, err := ParseHeader(strings.Join(values, ","))
	if err != nil {
		var herr *HeaderError
		if errors.As(err, &herr) {
			return Result{Kind: KindMalformedHeader, Reason: herr.Reason}, nil
		}
		return Result{Kind: KindMalformedHeader, Reason: err.Error()}, nil
	}

	expected := computeMAC(secret, header.RawTimestamp, body)
	if !matchAny(expected, header.Signatures) {
		return Result{Kind: KindInvalidSignature}, header
	}

	age := now - header.Timestamp
	if age > tolerance {
		return Result{Kind: KindExpired, Age: age, Tolerance: tolerance}, header
	}

	return Result{Kind: KindValid, Payload: body}, header
}

// computeMAC returns HMAC-SHA256(secret, "{timestamp}.{body}").
func computeMAC(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// matchAny compares expected against every candidate with hmac.Equal.
// The loop does not stop at the first match. Tags must be canonical lowercase
// hex; an upper-cased tag is a different header and does not verify.
func matchAny(expected []byte, candidates []Signature) bool {
	matched := false
	for _, sig := range candidates {
		decoded, err := hex.DecodeString(sig.Tag)
		if err != nil || hex.EncodeToString(decoded) != sig.Tag {
			continue
		}
		if hmac.Equal(expected, decoded) {
			matched = true
		}
	}
	return matched
}

// Verifier binds the shared secret and verification policy.
// It is safe for concurrent use; none of its fields change after construction.
type Verifier struct {
	secret       []byte
	tolerance    int64
	rejectFuture bool
	now          func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTolerance sets the freshness window. Sub-second precision is truncated.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		v.tolerance = int64(d / time.Second)
	}
}

// WithClock overrides the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithFutureRejection makes timestamps further than the tolerance in the
// future fail as expired.
func WithFutureRejection(reject bool) Option {
	return func(v *Verifier) {
		v.rejectFuture = reject
	}
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:    []byte(secret),
		tolerance: int64(DefaultTolerance / time.Second),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Tolerance returns the configured freshness window in seconds.
func (v *Verifier) Tolerance() int64 {
	return v.tolerance
}

// Verify checks the header values and body against the current time.
func (v *Verifier) Verify(values []string, body []byte) Result {
	now := v.now().Unix()
	result, header := verify(values, body, v.secret, now, v.tolerance)
	if result.Valid() && v.rejectFuture {
		if age := now - header.Timestamp; -age > v.tolerance {
			return Result{Kind: KindExpired, Age: age, Tolerance: v.tolerance}
		}
	}
	return result
}
