// Package namenorm canonicalizes free-text zone names and resolves them to
// canonical zone IDs through an alias table and an exact-name index.
package namenorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)

	// stripMarks decomposes characters and removes combining marks, so
	// accented source names match their plain-ASCII registry entries.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// aggregateNames are source rows that are headers or totals, not zones.
var aggregateNames = map[string]bool{
	"NUMBER": true,
	"TOTAL":  true,
}

// Normalize canonicalizes a raw zone name for matching. It strips a trailing
// "- Total" suffix and a trailing "SUBZONE" token, applies Unicode canonical
// decomposition, drops quote characters, turns hyphens and slashes into
// spaces, collapses whitespace, trims, and upper-cases.
//
// The second return value is false for rows that are clearly aggregates or
// headers (blank, "NUMBER", "TOTAL") and must not be matched at all.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "- Total")
	s = strings.TrimSuffix(s, "-Total")

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	s = strings.NewReplacer(
		"'", "",
		"’", "",
		"`", "",
		"\"", "",
		"-", " ",
		"–", " ",
		"/", " ",
	).Replace(s)

	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	// Trailing "SUBZONE" is boilerplate from the boundary source.
	s = strings.TrimSuffix(s, " SUBZONE")

	if s == "" || aggregateNames[s] {
		return "", false
	}
	return s, true
}
