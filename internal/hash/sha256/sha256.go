// Package sha256 fingerprints extracted page content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher produces the content_hash of a detail page.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashText hashes text after collapsing whitespace, so reflowed pages keep
// the same fingerprint.
func (h *Hasher) HashText(text string) string {
	digest, _ := h.Hash([]byte(strings.Join(strings.Fields(text), " "))) //nolint:errcheck // never fails
	return digest
}
