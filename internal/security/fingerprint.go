package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// FingerprintUserAgent returns a SHA-256 hash of the user-agent string,
// hex-encoded. Tokens and session records carry this hash, never the raw
// user-agent.
func FingerprintUserAgent(userAgent string) string {
	h := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(h[:])
}

// FingerprintEqual performs constant-time comparison of the given user-agent's
// fingerprint with a stored fingerprint. Returns true only if they match.
func FingerprintEqual(userAgent, storedFingerprint string) bool {
	fp := FingerprintUserAgent(userAgent)
	return subtle.ConstantTimeCompare([]byte(fp), []byte(storedFingerprint)) == 1
}
