// Package normalize maps provider payloads into model.Candidate and holds the
// text helpers shared by deduplication and reconciliation.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters NFD cannot decompose into a base letter plus a mark.
var letterFold = strings.NewReplacer("đ", "d", "ð", "d", "ł", "l", "ø", "o", "ß", "ss")

// Name lowercases s, folds diacritics to ASCII, and collapses every run of
// characters outside [a-z0-9] into a single space.
func Name(s string) string {
	s = strings.ToLower(s)
	s = letterFold.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Clean collapses internal whitespace and trims the ends.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
