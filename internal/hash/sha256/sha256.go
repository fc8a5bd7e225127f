// Package sha256 fingerprints acquired website content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the hex SHA-256 digest of text with surrounding and
// repeated whitespace collapsed, so re-rendered pages with the same words hash
// alike. Empty text yields "".
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
