package auth

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Provider API keys look like "qk_" followed by 32 base62 characters.
// The raw secret exists only at mint time; storage and logs use the
// digest and fingerprint instead.
const (
	KeyPrefix       = "qk_"
	keySecretLength = 32
	keyAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// APIKey is a freshly minted provider credential.
type APIKey struct {
	// Secret is the full key. Hand it to the provider once and
	// keep only the digest.
	Secret string

	// Digest is the SHA-256 hex digest of the secret, suitable
	// for storage and later verification.
	Digest string

	// Fingerprint is a short, non-reversible identifier for the
	// key, safe to log.
	Fingerprint string
}

// MintAPIKey creates a provider API key.
func MintAPIKey() (*APIKey, error) {
	random, err := nanoid.Generate(keyAlphabet, keySecretLength)
	if err != nil {
		return nil, fmt.Errorf("mint api key: %w", err)
	}
	secret := KeyPrefix + random
	return &APIKey{
		Secret:      secret,
		Digest:      DigestSecret(secret),
		Fingerprint: Fingerprint(secret),
	}, nil
}

// ValidKeyFormat reports whether s is shaped like a minted key:
// right prefix, right length, alphabet-only payload. It says nothing
// about whether the key is live; the remote end decides that.
func ValidKeyFormat(s string) bool {
	if !strings.HasPrefix(s, KeyPrefix) {
		return false
	}
	if len(s) != len(KeyPrefix)+keySecretLength {
		return false
	}
	for _, r := range s[len(KeyPrefix):] {
		if !strings.ContainsRune(keyAlphabet, r) {
			return false
		}
	}
	return true
}
