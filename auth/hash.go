package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// fingerprintLength is how many digest characters identify a key in
// logs and error messages.
const fingerprintLength = 8

// DigestSecret returns the SHA-256 hex digest of a secret. Store the
// digest, never the secret.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short log-safe identifier derived from the
// secret's digest.
func Fingerprint(secret string) string {
	return KeyPrefix + DigestSecret(secret)[:fingerprintLength]
}

// VerifySecret reports whether a presented secret matches a stored
// digest, comparing in constant time.
func VerifySecret(secret, digest string) bool {
	presented := DigestSecret(secret)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(digest)) == 1
}
