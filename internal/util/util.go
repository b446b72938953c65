// Package util provides string helpers for decoding bridge arguments.
package util

import "strings"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// Unquote undoes the host's string quoting: outer quotes are trimmed and
// doubled inner quotes collapsed.
func Unquote(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// SplitArray splits a flat array argument such as "[1,2,3]" or "1, 2, 3"
// into trimmed elements. Nested arrays are not supported.
func SplitArray(s string) []string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = s[1 : len(s)-1]
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = TrimQuotes(strings.TrimSpace(p))
	}
	return parts
}

// FormatList joins items as "a, b, c", or "-" when empty.
func FormatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(it)
	}
	return b.String()
}
