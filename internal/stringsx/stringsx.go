package stringsx

import (
	"strings"
	"unicode/utf8"
)

// Clip returns at most max runes of s, ending in "…" when s was cut.
// If max <= 0, an empty string is returned.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// FirstLine returns s up to its first line break.
func FirstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// Normalize trims spaces and converts a string to lower case.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsEmpty reports whether s is empty after trimming spaces.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// SplitTags parses a comma separated tag list. Tags are normalized,
// blanks dropped and duplicates collapsed; order of first appearance is kept.
func SplitTags(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		tag := Normalize(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
