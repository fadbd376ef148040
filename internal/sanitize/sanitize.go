// Package sanitize cleans free-form run names before they are stored and
// echoed back through listings and MCP tool results.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxNameLength is the maximum allowed length for run names.
const MaxNameLength = 64

var (
	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
	reRepeatedDots        = regexp.MustCompile(`\.{2,}`)
)

// RunName keeps only [a-zA-Z0-9-_./], turns spaces into hyphens, collapses
// repeated separators and truncates to MaxNameLength.
func RunName(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.TrimSpace(stripControlChars(input)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '/' || r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune('-')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = reRepeatedDots.ReplaceAllString(s, ".")

	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F) except
// newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
