package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// GenerateDeterministicID returns a UUID-shaped id derived from two natural-key parts.
// Both parts are trimmed and lower-cased before hashing, so casing or padding never
// changes the id. Changing these rules re-keys every stored plan and clinic.
func GenerateDeterministicID(a, b string) string {
	key := strings.ToLower(strings.TrimSpace(a)) + "|" + strings.ToLower(strings.TrimSpace(b))
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])[:32]
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace squashes runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// TitleCase upper-cases the first letter of every space separated word.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}
