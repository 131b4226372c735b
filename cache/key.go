package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"

	inkling "github.com/greyfriar/inkling"
)

// Key is the hex-encoded sha256 fingerprint of a request. Two logically
// identical requests under the same model and mode always produce the
// same key.
type Key string

// Normalize is the documented prompt normalization applied before
// fingerprinting: outer whitespace is trimmed and every internal run of
// whitespace collapses to a single space. Case is preserved, since code
// is case-sensitive. This is part of the cache's public contract.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NewKey fingerprints (model, mode, prompt, suffix). The fields are
// NUL-separated so that no concatenation of values can collide with
// another split of the same bytes.
func NewKey(model string, mode inkling.Mode, prompt, suffix string) Key {
	h := sha256.New()
	for _, field := range []string{model, string(mode), Normalize(prompt), Normalize(suffix)} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return Key(fmt.Sprintf("%x", h.Sum(nil)))
}
