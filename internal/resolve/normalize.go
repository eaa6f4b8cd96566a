// Package resolve matches CRM companies to registry entities: it normalizes
// names, retrieves candidates through a fallback chain of registry searches,
// scores them, and classifies the result as a link, a review, or no match.
package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// legalSuffixes are dropped when they appear as whole words.
var legalSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"ltd":          true,
	"limited":      true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
}

// Normalize canonicalizes an organization name for comparison: lowercase,
// legal suffixes removed as whole words, punctuation stripped, whitespace
// collapsed. It is idempotent.
func Normalize(raw string) string {
	// Stripping punctuation can expose a new suffix ("L.L.C." -> "llc"), so
	// repeat until the name stops changing.
	name := cases.Lower(language.Und).String(raw)
	for {
		next := normalizePass(name)
		if next == name {
			return name
		}
		name = next
	}
}

func normalizePass(s string) string {
	s = stripLegalSuffixes(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripLegalSuffixes removes suffix words bounded by non-alphanumerics,
// together with one trailing period.
func stripLegalSuffixes(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		if legalSuffixes[word] {
			if j < len(runes) && runes[j] == '.' {
				j++
			}
		} else {
			b.WriteString(word)
		}
		i = j
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
