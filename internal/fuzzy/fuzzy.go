// Package fuzzy scores how similar two team names are on a 0-100 scale.
package fuzzy

import (
	"strings"
	"unicode"

	fuzzywuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case, strips accents and replaces anything that is not a
// letter or digit with a single space.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}

// TokenSetRatio compares the token sets of a and b after normalisation so that
// word order and repeated or extra words ("Los Angeles Lakers" vs "Lakers")
// weigh less than in a plain ratio. Either side empty scores 0.
func TokenSetRatio(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	return fuzzywuzzy.TokenSetRatio(na, nb)
}

// Match is the outcome of ExtractOne.
type Match struct {
	Choice string
	Score  int
	Index  int
}

// ExtractOne scores query against every choice and returns the highest scoring
// one. Ties keep the earliest choice. ok is false when no choice reaches cutoff.
func ExtractOne(query string, choices []string, cutoff int) (Match, bool) {
	best := Match{Index: -1, Score: -1}
	for i, choice := range choices {
		score := TokenSetRatio(query, choice)
		if score > best.Score {
			best = Match{Choice: choice, Score: score, Index: i}
		}
	}
	if best.Index < 0 || best.Score < cutoff {
		return best, false
	}
	return best, true
}
