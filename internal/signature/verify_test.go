package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "sek"

func tag(secret string, ts int64, body []byte) string {
	return hex.EncodeToString(computeMAC([]byte(secret), fmt.Sprintf("%d", ts), body))
}

func header(ts int64, tags ...string) []string {
	parts := []string{fmt.Sprintf("t=%d", ts)}
	for _, tg := range tags {
		parts = append(parts, "v1="+tg)
	}
	return []string{strings.Join(parts, ",")}
}

func TestVerify_Valid(t *testing.T) {
	now := int64(1700000000)
	payloads := [][]byte{
		[]byte(`{"a":1}`),
		[]byte(""),
		[]byte("  {\n  \"spaced\" : true }\n"),
		[]byte("支払い完了"),
		{0x00, 0xff, 0x10},
	}

	for _, body := range payloads {
		for _, ts := range []int64{now, now - 1, now - 2} {
			got := Verify(header(ts, tag(testSecret, ts, body)), body, []byte(testSecret), now, 2)
			require.Equal(t, KindValid, got.Kind, "body=%q ts=%d", body, ts)
			assert.Equal(t, body, got.Payload)
		}
	}
}

func TestVerify_MissingHeader(t *testing.T) {
	got := Verify(nil, []byte(`{"a":1}`), []byte(testSecret), 1700000000, 2)
	assert.Equal(t, KindMissingHeader, got.Kind)
	assert.Equal(t, "Invalid webhook request: no pay-signature in header", got.Message())
}

func TestVerify_MalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{name: "present but empty", values: []string{""}},
		{name: "no elements", values: []string{"nonsense"}},
		{name: "timestamp only", values: []string{"t=1700000000"}},
		{name: "signature only", values: []string{"v1=abcd"}},
		{name: "timestamp not integer", values: []string{"t=1.5,v1=abcd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Verify(tt.values, []byte(`{}`), []byte(testSecret), 1700000000, 2)
			assert.Equal(t, KindMalformedHeader, got.Kind)
			assert.NotEmpty(t, got.Reason)
			assert.Contains(t, got.Message(), "malformed pay-signature header")
		})
	}
}

func TestVerify_MultipleHeaderLinesAreJoined(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"a":1}`)
	values := []string{fmt.Sprintf("t=%d", now), "v1=" + tag(testSecret, now, body)}

	got := Verify(values, body, []byte(testSecret), now, 2)
	assert.Equal(t, KindValid, got.Kind)
}

func TestVerify_BitFlipInvalidates(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"id":"evt_1","amount":1200}`)
	good := tag(testSecret, now, body)

	for i := 0; i < len(good); i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := []byte(good)
			flipped[i] ^= 1 << bit
			got := Verify(header(now, string(flipped)), body, []byte(testSecret), now, 2)
			require.Equal(t, KindInvalidSignature, got.Kind, "position %d bit %d", i, bit)
		}
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"a":1}`)

	tests := []struct {
		name   string
		values []string
		body   []byte
	}{
		{name: "tampered body", values: header(now, tag(testSecret, now, []byte(`{"a":2}`))), body: body},
		{name: "wrong secret", values: header(now, tag("other", now, body)), body: body},
		{name: "timestamp changed", values: header(now, tag(testSecret, now-1, body)), body: body},
		{name: "odd length hex", values: header(now, "abc"), body: body},
		{name: "non hex", values: header(now, "zz"), body: body},
		{name: "truncated tag", values: header(now, tag(testSecret, now, body)[:32]), body: body},
		{name: "upper case tag", values: header(now, strings.ToUpper(tag(testSecret, now, body))), body: body},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Verify(tt.values, tt.body, []byte(testSecret), now, 2)
			assert.Equal(t, KindInvalidSignature, got.Kind)
			assert.Equal(t, "Invalid Signature", got.Message())
		})
	}
}

func TestVerify_AnyV1CandidateMayMatch(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"a":1}`)
	good := tag(testSecret, now, body)
	stale := tag("rotated-out", now, body)

	assert.Equal(t, KindValid, Verify(header(now, stale, good), body, []byte(testSecret), now, 2).Kind)
	assert.Equal(t, KindValid, Verify(header(now, good, stale), body, []byte(testSecret), now, 2).Kind)
	assert.Equal(t, KindValid, Verify(header(now, "nothex", good), body, []byte(testSecret), now, 2).Kind)
	assert.Equal(t, KindInvalidSignature, Verify(header(now, stale, "nothex"), body, []byte(testSecret), now, 2).Kind)
}

func TestVerify_DowngradeRejected(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"a":1}`)

	// a legacy scheme signing the bare body with SHA-1
	legacy := hmac.New(sha1.New, []byte(testSecret))
	legacy.Write(body)
	legacyTag := hex.EncodeToString(legacy.Sum(nil))

	t.Run("legacy only", func(t *testing.T) {
		values := []string{fmt.Sprintf("t=%d,v0=%s", now, legacyTag)}
		got := Verify(values, body, []byte(testSecret), now, 2)
		assert.Equal(t, KindMalformedHeader, got.Kind)
	})

	t.Run("correct v1 tag under legacy key", func(t *testing.T) {
		values := []string{fmt.Sprintf("t=%d,v0=%s", now, tag(testSecret, now, body))}
		got := Verify(values, body, []byte(testSecret), now, 2)
		assert.Equal(t, KindMalformedHeader, got.Kind)
	})

	t.Run("legacy alongside bad v1", func(t *testing.T) {
		values := []string{fmt.Sprintf("t=%d,v0=%s,v1=%s", now, tag(testSecret, now, body), strings.Repeat("0", 64))}
		got := Verify(values, body, []byte(testSecret), now, 2)
		assert.Equal(t, KindInvalidSignature, got.Kind)
	})
}

func TestVerify_Expired(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"a":1}`)

	for _, age := range []int64{3, 10, 3600} {
		ts := now - age
		got := Verify(header(ts, tag(testSecret, ts, body)), body, []byte(testSecret), now, 2)
		require.Equal(t, KindExpired, got.Kind)
		assert.Equal(t, age, got.Age)
		assert.Equal(t, int64(2), got.Tolerance)
		assert.Equal(t, fmt.Sprintf("Expired webhook request: %d > 2", age), got.Message())
	}
}

func TestVerify_ExpiredIsCheckedAfterSignature(t *testing.T) {
	now := int64(1700000000)
	ts := now - 3600
	body := []byte(`{"a":1}`)

	got := Verify(header(ts, tag("wrong", ts, body)), body, []byte(testSecret), now, 2)
	assert.Equal(t, KindInvalidSignature, got.Kind)
}

func TestVerify_FutureTimestampAccepted(t *testing.T) {
	now := int64(1700000000)
	ts := now + 3600
	body := []byte(`{"a":1}`)

	got := Verify(header(ts, tag(testSecret, ts, body)), body, []byte(testSecret), now, 2)
	assert.Equal(t, KindValid, got.Kind)
}

func TestVerify_ReplayWithinWindowIsValid(t *testing.T) {
	now := int64(1700000000)
	body := []byte(`{"a":1}`)
	values := header(now, tag(testSecret, now, body))

	first := Verify(values, body, []byte(testSecret), now, 2)
	second := Verify(values, body, []byte(testSecret), now+1, 2)
	assert.Equal(t, KindValid, first.Kind)
	assert.Equal(t, KindValid, second.Kind)
}

func TestVerifier(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	clock := func() time.Time { return fixed }
	body := []byte(`{"a":1}`)

	t.Run("defaults", func(t *testing.T) {
		v := NewVerifier(testSecret, WithClock(clock))
		assert.Equal(t, int64(2), v.Tolerance())

		ts := fixed.Unix()
		assert.True(t, v.Verify(header(ts, tag(testSecret, ts, body)), body).Valid())

		ts = fixed.Unix() - 3
		assert.Equal(t, KindExpired, v.Verify(header(ts, tag(testSecret, ts, body)), body).Kind)
	})

	t.Run("custom tolerance", func(t *testing.T) {
		v := NewVerifier(testSecret, WithClock(clock), WithTolerance(5*time.Minute))
		ts := fixed.Unix() - 299
		assert.True(t, v.Verify(header(ts, tag(testSecret, ts, body)), body).Valid())
	})

	t.Run("future timestamps accepted by default", func(t *testing.T) {
		v := NewVerifier(testSecret, WithClock(clock))
		ts := fixed.Unix() + 600
		assert.True(t, v.Verify(header(ts, tag(testSecret, ts, body)), body).Valid())
	})

	t.Run("future timestamps rejected when configured", func(t *testing.T) {
		v := NewVerifier(testSecret, WithClock(clock), WithFutureRejection(true))

		ts := fixed.Unix() + 600
		got := v.Verify(header(ts, tag(testSecret, ts, body)), body)
		assert.Equal(t, KindExpired, got.Kind)
		assert.Equal(t, int64(-600), got.Age)

		ts = fixed.Unix() + 2
		assert.True(t, v.Verify(header(ts, tag(testSecret, ts, body)), body).Valid())
	})

	t.Run("future rejection reads the timestamp from split header lines", func(t *testing.T) {
		v := NewVerifier(testSecret, WithClock(clock), WithFutureRejection(true))
		ts := fixed.Unix() + 600
		values := []string{fmt.Sprintf("t=%d", ts), "v1=" + tag(testSecret, ts, body)}

		got := v.Verify(values, body)
		assert.Equal(t, KindExpired, got.Kind)
		assert.Equal(t, int64(-600), got.Age)
		assert.Equal(t, "Expired webhook request: -600 > 2", got.Message())
	})

	t.Run("future rejection does not mask invalid signatures", func(t *testing.T) {
		v := NewVerifier(testSecret, WithClock(clock), WithFutureRejection(true))
		ts := fixed.Unix() + 600
		assert.Equal(t, KindInvalidSignature, v.Verify(header(ts, tag("x", ts, body)), body).Kind)
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "valid", KindValid.String())
	assert.Equal(t, "invalid_signature", KindInvalidSignature.String())
	assert.Equal(t, "expired", KindExpired.String())
	assert.Equal(t, "malformed_header", KindMalformedHeader.String())
	assert.Equal(t, "missing_header", KindMissingHeader.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
