// Package checksum provides hex SHA-256 digests and digest comparison.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString returns the hex-encoded SHA-256 digest of s.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Match reports whether two hex digests encode the same bytes. Hex case is
// ignored; malformed input never matches. The byte comparison is constant time.
func Match(a, b string) bool {
	ab, err := hex.DecodeString(strings.TrimSpace(a))
	if err != nil {
		return false
	}
	bb, err := hex.DecodeString(strings.TrimSpace(b))
	if err != nil {
		return false
	}
	if len(ab) == 0 || len(ab) != len(bb) {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
