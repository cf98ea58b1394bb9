package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeQuery normalizes a name or employee ID for matching
// (lowercase, no diacritics, dashes treated as spaces).
func NormalizeQuery(s string) string {
	s = RemoveDiacritics(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.TrimSpace(s)
}

// matchesQuery reports whether an identity matches a normalized query.
func matchesQuery(identity *Identity, normalizedQuery string) bool {
	if normalizedQuery == "" {
		return true
	}
	return strings.Contains(NormalizeQuery(identity.EmployeeID), normalizedQuery) ||
		strings.Contains(NormalizeQuery(identity.Name), normalizedQuery)
}
