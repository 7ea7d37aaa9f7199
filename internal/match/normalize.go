// Package match implements the heuristic scorer that decides whether an
// incoming provider record and a stored entity describe the same physical
// establishment.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// streetAbbrevs unifies common street-type spellings so "123 Main Street" and
// "123 Main St" normalize to the same string.
var streetAbbrevs = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"av":        "ave",
	"boulevard": "blvd",
	"road":      "rd",
	"drive":     "dr",
	"lane":      "ln",
	"court":     "ct",
	"place":     "pl",
	"square":    "sq",
	"highway":   "hwy",
	"parkway":   "pkwy",
	"suite":     "ste",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// foldDiacritics strips combining marks ("Café" → "Cafe").
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases a business name, folds diacritics, and collapses
// runs of whitespace.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeAddress lowercases an address, strips punctuation, and unifies
// street-type abbreviations.
func NormalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// Punctuation is dropped.
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		if abbr, ok := streetAbbrevs[w]; ok {
			words[i] = abbr
		}
	}
	return strings.Join(words, " ")
}

// NormalizePhone reduces a phone number to bare digits and strips an optional
// leading US country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}
