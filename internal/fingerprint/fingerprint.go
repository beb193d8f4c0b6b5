// Package fingerprint computes stable content hashes used for deduplication.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Compute returns a deterministic hex digest over normalized content.
// Title and body are lowercased and whitespace-collapsed so that trivial
// reformatting of the same story hashes identically; the link acts as a
// tie-breaker between distinct items with identical text.
func Compute(title, body, link string) string {
	h := sha256.New()
	h.Write([]byte(normalize(title)))
	h.Write([]byte{'|'})
	h.Write([]byte(normalize(body)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(link)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
