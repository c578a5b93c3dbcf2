// Package textx holds the text cleanup applied to model and speech output.
package textx

import (
	"strings"
	"unicode"
)

// SanitizeText drops control and format characters and collapses every run
// of whitespace, newlines included, into one space.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
