package webhook

import (
	"strings"
	"testing"
)

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	b, _ := GenerateSecret()

	if !strings.HasPrefix(a, SecretPrefix) {
		t.Errorf("secret %q missing prefix %q", a, SecretPrefix)
	}
	if len(a) != len(SecretPrefix)+2*SecretLength {
		t.Errorf("len = %d, want %d", len(a), len(SecretPrefix)+2*SecretLength)
	}
	if a == b {
		t.Error("two generated secrets are equal")
	}
}
