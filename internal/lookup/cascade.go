// Package lookup resolves raw submitted labels against small reference
// tables. Submitters type free text ("Bach Khoa", "Ho Chi Minh City -
// University X (English)", …) and the dashboard stores the matched row id
// whenever one of an ordered list of matching strategies succeeds.
//
// The cascade is best-effort by contract: when every strategy misses, the
// raw label is kept as submitted and ingestion continues. A miss is never
// an error.
package lookup

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Candidate is one row of a reference table projected to (id, label).
type Candidate struct {
	ID    uint
	Label string
}

// Match is a successful resolution of a label to a reference row.
type Match struct {
	ID    uint
	Label string
}

// Strategy tries to match a submitted label against candidates. Strategies
// are pure; they are tried in order until one succeeds.
type Strategy func(label string, candidates []Candidate) (Match, bool)

// trailingParenRE matches a trailing parenthetical such as " (English)".
var trailingParenRE = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

var folder = cases.Fold()

// fold canonicalizes a label for case-insensitive comparison. NFC first so
// composed and decomposed Vietnamese diacritics compare equal.
func fold(s string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(s)))
}

// stripParen removes a trailing parenthetical suffix from a label.
func stripParen(s string) string {
	return strings.TrimSpace(trailingParenRE.ReplaceAllString(s, ""))
}

// stripCityPrefix removes a leading "<City> - " qualifier from a label.
// Labels without the " - " separator are returned unchanged.
func stripCityPrefix(s string) string {
	if i := strings.Index(s, " - "); i > 0 {
		return strings.TrimSpace(s[i+3:])
	}
	return s
}

// Exact matches the submitted label against candidate labels verbatim
// (after whitespace trimming).
func Exact(label string, candidates []Candidate) (Match, bool) {
	want := strings.TrimSpace(label)
	for _, c := range candidates {
		if strings.TrimSpace(c.Label) == want {
			return Match{ID: c.ID, Label: c.Label}, true
		}
	}
	return Match{}, false
}

// Substring matches when the submitted label contains a candidate label,
// case-insensitively. Among matching candidates the longest label wins
// (most specific); equal lengths break by lowest id for determinism.
func Substring(label string, candidates []Candidate) (Match, bool) {
	return containsMatch(label, candidates, func(s string) string { return s })
}

// StrippedParenSubstring retries the substring match after removing a
// trailing parenthetical (e.g. "(English)") from each candidate label.
func StrippedParenSubstring(label string, candidates []Candidate) (Match, bool) {
	return containsMatch(label, candidates, stripParen)
}

// StrippedAffixSubstring retries the substring match after removing both the
// trailing parenthetical and a leading "<City> - " prefix from each
// candidate label. This is the last resolving step before passthrough.
func StrippedAffixSubstring(label string, candidates []Candidate) (Match, bool) {
	return containsMatch(label, candidates, func(s string) string {
		return stripCityPrefix(stripParen(s))
	})
}

// containsMatch is the shared substring matcher: the folded submitted label
// must contain the folded (transformed) candidate label.
func containsMatch(label string, candidates []Candidate, transform func(string) string) (Match, bool) {
	want := fold(label)
	if want == "" {
		return Match{}, false
	}
	var best Match
	bestLen := -1
	for _, c := range candidates {
		key := fold(transform(c.Label))
		if key == "" || !strings.Contains(want, key) {
			continue
		}
		if len(key) > bestLen || (len(key) == bestLen && c.ID < best.ID) {
			best = Match{ID: c.ID, Label: c.Label}
			bestLen = len(key)
		}
	}
	return best, bestLen >= 0
}

// Strategies returns the resolution cascade in evaluation order.
func Strategies() []Strategy {
	return []Strategy{
		Exact,
		Substring,
		StrippedParenSubstring,
		StrippedAffixSubstring,
	}
}

// Resolve runs the cascade and reports the first successful match. ok is
// false when every strategy missed; the caller then stores the raw label
// unresolved and proceeds.
func Resolve(label string, candidates []Candidate) (Match, bool) {
	if strings.TrimSpace(label) == "" {
		return Match{}, false
	}
	for _, try := range Strategies() {
		if m, ok := try(label, candidates); ok {
			return m, true
		}
	}
	return Match{}, false
}
