// Package sanitize normalizes identifiers and confines paths to a root
// directory.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength is the longest identifier Identifier returns.
	MaxIdentifierLength = 64

	// hashSuffixLength is len("_") plus eight hex digits.
	hashSuffixLength = 9

	// DefaultIdentifier replaces inputs with no usable characters.
	DefaultIdentifier = "default"
)

// Identifier lowercases s and reduces it to [a-z0-9_], collapsing runs of
// underscores. Results longer than MaxIdentifierLength are cut and suffixed
// with a hash of the full value so distinct inputs stay distinct.
//
//	"Support Docs"   -> "support_docs"
//	"docs/v2.1"      -> "docs_v2_1"
//	"" or "!!!"      -> "default"
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	underscore := true
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}

// truncateWithHash keeps a prefix of s and appends "_" plus eight hex digits
// of its SHA-256.
func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	prefix := strings.TrimRight(s[:MaxIdentifierLength-hashSuffixLength], "_")
	return prefix + "_" + hex.EncodeToString(sum[:])[:8]
}
