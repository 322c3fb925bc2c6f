package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentFingerprint returns a stable hex digest of the given text, used as a
// cache key and for detecting already-indexed content. Case and surrounding
// whitespace do not change the fingerprint.
func ContentFingerprint(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
