package services

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nonAlnumRE matches runs of anything that is not a lowercase ASCII letter
// or digit.
var nonAlnumRE = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, folds accents ("Crème Brûlée" -> "creme-brulee"),
// collapses every other run of characters into one hyphen and trims
// hyphens at both ends.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Trim(nonAlnumRE.ReplaceAllString(folded, "-"), "-")
}
