// Package signature implements the Pay-Signature webhook authentication scheme.
//
// A signed request carries a header of the form
//
//	Pay-Signature: t=1700000000,v1=5257a869e7ecebeda32affa62cdca3fa51cad7e77a0e56ff536d0ce8e108d8bd
//
// where v1 is the hex encoded HMAC-SHA256 of "{t}.{raw body}" keyed with the
// shared signature secret. Several v1 elements may be present while a secret
// is being rotated. Elements with any other scheme are never trusted.
package signature

import (
	"strconv"
	"strings"
)

// HeaderName is the HTTP header carrying the signature.
const HeaderName = "Pay-Signature"

// SchemeV1 is the only signature scheme accepted by the verifier.
const SchemeV1 = "v1"

const timestampKey = "t"

// Signature is a single (scheme, tag) element of a signature header.
type Signature struct {
	Scheme string
	Tag    string
}

// Header is the parsed representation of a Pay-Signature header.
type Header struct {
	// Timestamp is the signing time claimed by the sender, in unix seconds.
	Timestamp int64
	// RawTimestamp is the timestamp exactly as sent; it is part of the signed message.
	RawTimestamp string
	// Signatures holds every v1 element, in header order.
	Signatures []Signature
	// Ignored lists the keys of well-formed elements that were not trusted.
	Ignored []string
}

// HeaderError describes why a signature header could not be parsed.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string {
	return "malformed signature header: " + e.Reason
}

// ParseHeader parses a raw Pay-Signature header value.
//
// Elements that do not split into key=value are discarded. Only the first t
// element and every v1 element are retained; other schemes are recorded in
// Ignored and otherwise dropped so that a legacy tag can never be used to
// authenticate a request.
func ParseHeader(raw string) (*Header, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &HeaderError{Reason: "empty header"}
	}

	h := &Header{}
	recognized := 0
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		if key == "" {
			continue
		}
		recognized++

		switch key {
		case timestampKey:
			if h.RawTimestamp == "" {
				h.RawTimestamp = value
			}
		case SchemeV1:
			if value != "" {
				h.Signatures = append(h.Signatures, Signature{Scheme: SchemeV1, Tag: value})
			}
		default:
			h.Ignored = append(h.Ignored, key)
		}
	}

	if recognized == 0 {
		return nil, &HeaderError{Reason: "no key=value elements"}
	}
	if h.RawTimestamp == "" {
		return nil, &HeaderError{Reason: "missing timestamp"}
	}
	ts, err := strconv.ParseInt(h.RawTimestamp, 10, 64)
	if err != nil {
		return nil, &HeaderError{Reason: "timestamp is not an integer"}
	}
	h.Timestamp = ts
	if len(h.Signatures) == 0 {
		return nil, &HeaderError{Reason: "no v1 signature"}
	}

	return h, nil
}
