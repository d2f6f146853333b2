package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalizes a question so trivially different phrasings
// map to the same cache entry: lowercase, trimmed, internal whitespace
// collapsed, trailing question/sentence punctuation stripped.
func Normalize(question string) string {
	n := strings.ToLower(strings.TrimSpace(question))
	n = strings.Join(strings.Fields(n), " ")
	return strings.TrimRight(n, "?.!")
}

// Key derives the cache key for a question under a given model. The key
// is the SHA-256 hex digest of the normalized question joined with the
// model name, so the same question asked of a different model is a
// distinct entry.
func Key(question, model string) string {
	sum := sha256.Sum256([]byte(Normalize(question) + "|" + model))
	return hex.EncodeToString(sum[:])
}
