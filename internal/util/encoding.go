package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePassphrase applies NFKD so that visually identical passphrases
// typed on different platforms derive the same key.
func NormalizePassphrase(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeUsername trims surrounding whitespace and applies NFKC, matching
// how login forms submit the username field.
func NormalizeUsername(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}
