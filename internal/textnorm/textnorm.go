// Package textnorm provides the shared text normalization used by the lexical
// match engines: lowercasing, diacritic folding, and tokenization that are
// stable across scripts.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining marks, so that "café" and "cafe"
// compare equal. Non-ASCII scripts pass through unchanged apart from casing.
func Fold(s string) string {
	lowered := strings.ToLower(s)
	// The chain keeps per-call state, so build it per invocation.
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// Tokens splits s into folded word tokens. Anything that is not a letter or a
// digit is a separator, which also collapses irregular whitespace.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// CollapseSpace trims s and squeezes internal whitespace runs to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
