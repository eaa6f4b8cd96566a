package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Similarity returns the Dice coefficient over character bigrams of a and b
// after case folding and removing everything but letters and digits. The
// result is in [0, 1] and symmetric in its arguments.
func Similarity(a, b string) float64 {
	ra := foldAlnum(a)
	rb := foldAlnum(b)

	if string(ra) == string(rb) {
		return 1
	}
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	grams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		grams[[2]rune{ra[i], ra[i+1]}]++
	}

	var common int
	for i := 0; i < len(rb)-1; i++ {
		g := [2]rune{rb[i], rb[i+1]}
		if grams[g] > 0 {
			grams[g]--
			common++
		}
	}

	return 2 * float64(common) / float64(len(ra)+len(rb)-2)
}

func foldAlnum(s string) []rune {
	folded := cases.Fold().String(s)
	return []rune(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, folded))
}

// Scorer combines name similarity with a location bonus.
type Scorer struct {
	LocationBonus float64
}

// Score rates candidate c against the subject name and optional state hint.
// The better of the legal-name and alternate-name similarities is taken, the
// location bonus is added when a non-blank hint matches the candidate's
// state, and the total is capped at 1.
func (s Scorer) Score(subjectName, stateHint string, c Candidate) float64 {
	subject := Normalize(subjectName)

	score := Similarity(subject, Normalize(c.LegalName))
	if c.HasAlternateName() {
		if alt := Similarity(subject, Normalize(c.AlternateName)); alt > score {
			score = alt
		}
	}

	state := strings.TrimSpace(stateHint)
	if state != "" && c.StateCode != "" && strings.EqualFold(state, strings.TrimSpace(c.StateCode)) {
		score += s.LocationBonus
	}
	return min(score, 1.0)
}
