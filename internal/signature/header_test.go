package signature

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantTS      int64
		wantSigs    []Signature
		wantIgnored []string
	}{
		{
			name:     "single v1",
			raw:      "t=1700000000,v1=abcd",
			wantTS:   1700000000,
			wantSigs: []Signature{{Scheme: "v1", Tag: "abcd"}},
		},
		{
			name:   "multiple v1 keep order",
			raw:    "t=1700000000,v1=aa,v1=bb,v1=cc",
			wantTS: 1700000000,
			wantSigs: []Signature{
				{Scheme: "v1", Tag: "aa"},
				{Scheme: "v1", Tag: "bb"},
				{Scheme: "v1", Tag: "cc"},
			},
		},
		{
			name:        "legacy scheme is ignored",
			raw:         "t=1700000000,v0=ffff,v1=abcd",
			wantTS:      1700000000,
			wantSigs:    []Signature{{Scheme: "v1", Tag: "abcd"}},
			wantIgnored: []string{"v0"},
		},
		{
			name:     "elements without equals are discarded",
			raw:      "garbage,t=1700000000,,v1=abcd",
			wantTS:   1700000000,
			wantSigs: []Signature{{Scheme: "v1", Tag: "abcd"}},
		},
		{
			name:     "whitespace around elements",
			raw:      " t=1700000000 , v1=abcd ",
			wantTS:   1700000000,
			wantSigs: []Signature{{Scheme: "v1", Tag: "abcd"}},
		},
		{
			name:     "first timestamp wins",
			raw:      "t=1700000000,t=1800000000,v1=abcd",
			wantTS:   1700000000,
			wantSigs: []Signature{{Scheme: "v1", Tag: "abcd"}},
		},
		{
			name:     "value may contain equals",
			raw:      "t=1700000000,v1=ab=cd",
			wantTS:   1700000000,
			wantSigs: []Signature{{Scheme: "v1", Tag: "ab=cd"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHeader(tt.raw)
			if err != nil {
				t.Fatalf("ParseHeader(%q) error = %v, want nil", tt.raw, err)
			}
			if h.Timestamp != tt.wantTS {
				t.Errorf("Timestamp = %d, want %d", h.Timestamp, tt.wantTS)
			}
			if !reflect.DeepEqual(h.Signatures, tt.wantSigs) {
				t.Errorf("Signatures = %v, want %v", h.Signatures, tt.wantSigs)
			}
			if !reflect.DeepEqual(h.Ignored, tt.wantIgnored) {
				t.Errorf("Ignored = %v, want %v", h.Ignored, tt.wantIgnored)
			}
		})
	}
}

func TestParseHeader_Malformed(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantReason string
	}{
		{name: "empty", raw: "", wantReason: "empty header"},
		{name: "blank", raw: "   ", wantReason: "empty header"},
		{name: "no elements", raw: "abc,def", wantReason: "no key=value elements"},
		{name: "only commas", raw: ",,,", wantReason: "no key=value elements"},
		{name: "missing timestamp", raw: "v1=abcd", wantReason: "missing timestamp"},
		{name: "non integer timestamp", raw: "t=yesterday,v1=abcd", wantReason: "timestamp is not an integer"},
		{name: "no v1", raw: "t=1700000000", wantReason: "no v1 signature"},
		{name: "only legacy scheme", raw: "t=1700000000,v0=abcd", wantReason: "no v1 signature"},
		{name: "empty v1", raw: "t=1700000000,v1=", wantReason: "no v1 signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.raw)
			if err == nil {
				t.Fatalf("ParseHeader(%q) error = nil, want error", tt.raw)
			}
			var herr *HeaderError
			if !errors.As(err, &herr) {
				t.Fatalf("error type = %T, want *HeaderError", err)
			}
			if herr.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", herr.Reason, tt.wantReason)
			}
		})
	}
}
