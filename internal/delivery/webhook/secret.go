package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	SecretLength = 32
	SecretPrefix = "whsec_"
)

// GenerateSecret returns a random signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
