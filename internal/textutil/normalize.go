// Package textutil collects the small text-normalization helpers shared
// by the resolver, spatial filter, perception gate and pipeline, so each
// of them agrees on
// exactly what "the same word" means.
package textutil

import (
	"regexp"
	"strings"
)

var nonWordSpace = regexp.MustCompile(`[^\w\s]`)

// NormalizeForMatching lowercases, strips, and removes everything but
// word characters and whitespace, then collapses internal whitespace.
// It is the single normalization rule C3, C4 and C8 rely on.
func NormalizeForMatching(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonWordSpace.ReplaceAllString(s, "")
	return CollapseWhitespace(s)
}

// CollapseWhitespace replaces runs of whitespace with a single space and
// trims the result.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// WordBoundaryMatch is the tiered match used by the resolver's per-fragment
// scoring. It returns the tier name or "" if nothing matched.
//
// Fragments shorter than 5 runes never fall through to a within-word
// match: a short fragment like "plan" must not match inside "explanation".
func WordBoundaryMatch(text, pattern string) string {
	if text == "" || pattern == "" {
		return ""
	}
	if wordBoundaryRe(pattern).MatchString(text) {
		return "exact_word"
	}
	if strings.HasPrefix(text, pattern) {
		return "starts_with"
	}
	if strings.HasSuffix(text, pattern) {
		return "ends_with"
	}
	if len([]rune(pattern)) >= 5 && strings.Contains(text, pattern) {
		return "within_word"
	}
	return ""
}

func wordBoundaryRe(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(pattern) + `\b`)
}

// Words splits s on whitespace.
func Words(s string) []string {
	return strings.Fields(s)
}

// IsPluralVariant reports whether exactly one of a, b is the other with
// a trailing "s", and both are longer than 3 runes — the resolver's
// singular/plural bonus rule.
func IsPluralVariant(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) <= 3 || len(rb) <= 3 {
		return false
	}
	aIsPlural := strings.HasSuffix(a, "s") && a[:len(a)-1] == b
	bIsPlural := strings.HasSuffix(b, "s") && b[:len(b)-1] == a
	return aIsPlural != bIsPlural
}
