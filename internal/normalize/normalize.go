// Package normalize provides pure value-cleaning functions for imported
// cell values. None of them fail; bad input degrades to a neutral empty
// value.
package normalize

import (
	"strconv"
	"strings"
)

// Identifier strips whitespace and dashes from a national ID. The result
// stays a string so leading zeros survive.
func Identifier(s string) string {
	return stripSeparators(s)
}

// Phone strips whitespace and dashes from a phone number. Digits are
// otherwise preserved as-is.
func Phone(s string) string {
	return stripSeparators(s)
}

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Number strips whitespace and dashes and parses the remainder as an
// integer. Non-numeric input yields 0, meaning "no number".
func Number(s string) int {
	cleaned := stripSeparators(s)
	if cleaned == "" {
		return 0
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IsEmpty reports whether a cell value counts as empty for the
// fill-empty-only merge policy. The legacy desktop product writes "-" as
// its empty placeholder, and exports sometimes carry literal null tokens.
func IsEmpty(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-", "null", "undefined":
		return true
	}
	return false
}

func stripSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '-':
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
