// Package fingerprint computes content digests used to compare URL bodies
// across runs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a rendered digest (hex-encoded SHA-256).
const Size = sha256.Size * 2

// Digest returns the lowercase hex SHA-256 of b.
//
// An empty or nil payload is hashed like any other input, so a URL that
// starts returning an empty body is still tracked (and compared) normally.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s has the shape produced by Digest.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
