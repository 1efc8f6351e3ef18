// Package textsanitize normalizes user-supplied plain text (task titles,
// comments, chat messages) before it is stored. Text is served as JSON and
// never rendered as HTML here, so markup is kept verbatim; escaping belongs
// to whatever renders it.
package textsanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Text returns s in Unicode NFC with invalid UTF-8 replaced, control
// characters other than newline and tab removed, and surrounding whitespace
// trimmed.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(norm.NFC.String(s))
}

// IsBlank reports whether s is empty once normalized.
func IsBlank(s string) bool {
	return Text(s) == ""
}
