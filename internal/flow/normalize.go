// Package flow implements the conversation flow engine: the per-user state
// machine that routes every inbound WhatsApp event through the operator's
// flow graph, the trigger matcher, the human-handoff window and the answer
// strategy chain.
package flow

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentFolder strips combining marks so "envíos" and "envios" compare equal.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, folds accents and collapses whitespace. All matching
// in this package runs over normalized text.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(accentFolder, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(s), " ")
}

// StripPunctuation removes everything except letters, digits and spaces.
func StripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokens splits normalized text into words with punctuation stripped.
func Tokens(s string) []string {
	return strings.Fields(StripPunctuation(Normalize(s)))
}

// containsAny reports whether any needle is a substring of haystack.
func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
