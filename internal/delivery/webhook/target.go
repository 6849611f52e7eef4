package webhook

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateTargetURL checks that raw can receive a webhook.
// Plain HTTP is only accepted for loopback hosts unless allowInsecure is set.
func ValidateTargetURL(raw string, allowInsecure bool) error {
	if raw == "" {
		return fmt.Errorf("URL is empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	if scheme == "http" && !allowInsecure && !IsLoopback(host) {
		return fmt.Errorf("HTTPS is required for non-local relay %q", host)
	}

	return nil
}

// IsLoopback reports whether host names this machine.
// Accepts "localhost", "0.0.0.0", and any loopback address.
func IsLoopback(host string) bool {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	switch strings.ToLower(host) {
	case "localhost", "0.0.0.0":
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
