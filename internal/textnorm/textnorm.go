// Package textnorm folds free-form labels into comparable keys.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and trims surrounding whitespace.
// "  Côte d'Ivoire " becomes "cote d'ivoire".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Compact folds s and then drops every rune that is not a letter or digit, so
// "Both-Sexes", "both_sexes" and "BOTH SEXES" all become "bothsexes".
func Compact(s string) string {
	folded := Fold(s)
	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// NameKey folds a display name and collapses internal whitespace and common
// punctuation, keeping word boundaries: "Congo, Dem. Rep." becomes "congo dem rep".
func NameKey(s string) string {
	folded := Fold(s)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	return strings.Join(fields, " ")
}
