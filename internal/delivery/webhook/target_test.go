package webhook

import (
	"strings"
	"testing"
)

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		allowInsecure bool
		wantErr       string
	}{
		{name: "https public", url: "https://relay.example.com/hooks"},
		{name: "http localhost", url: "http://localhost:8080/"},
		{name: "http loopback v4", url: "http://127.0.0.1:8080/"},
		{name: "http loopback v6", url: "http://[::1]:8080/"},
		{name: "http any loopback", url: "http://127.8.9.10/"},
		{name: "http public insecure allowed", url: "http://relay.example.com/", allowInsecure: true},
		{name: "http public", url: "http://relay.example.com/", wantErr: "HTTPS is required"},
		{name: "http private", url: "http://10.0.0.5:8080/", wantErr: "HTTPS is required"},
		{name: "empty", url: "", wantErr: "URL is empty"},
		{name: "websocket scheme", url: "ws://127.0.0.1:8080/", wantErr: "unsupported URL scheme"},
		{name: "missing host", url: "http:///path", wantErr: "missing host"},
		{name: "unparseable", url: "http://[::1", wantErr: "invalid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url, tt.allowInsecure)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateTargetURL(%q) error = %v, want nil", tt.url, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateTargetURL(%q) error = %v, want %q", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsLoopback(t *testing.T) {
	for host, want := range map[string]bool{
		"localhost":   true,
		"LOCALHOST":   true,
		"127.0.0.1":   true,
		"::1":         true,
		"[::1]":       true,
		"0.0.0.0":     true,
		"10.0.0.1":    false,
		"example.com": false,
		"":            false,
	} {
		if got := IsLoopback(host); got != want {
			t.Errorf("IsLoopback(%q) = %v, want %v", host, got, want)
		}
	}
}
