package storage

import (
	"fmt"

	"github.com/giantswarm/oauth1-oob/security"
)

// EncryptSecret seals a token secret or verifier for storage.
// Empty values and a nil or disabled encryptor leave the value unchanged.
func EncryptSecret(value string, enc *security.Encryptor) (string, error) {
	if value == "" || !enc.IsEnabled() {
		return value, nil
	}
	sealed, err := enc.Encrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return sealed, nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(value string, enc *security.Encryptor) (string, error) {
	if value == "" || !enc.IsEnabled() {
		return value, nil
	}
	plain, err := enc.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plain, nil
}
