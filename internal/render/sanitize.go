package render

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Placeholder replaces every character the PDF core fonts cannot show.
const Placeholder = '?'

// Sanitize makes s representable in Windows-1252, the encoding of the standard
// PDF fonts. Compatibility forms are folded first (NFKC: ligatures, full-width
// letters, "…"), tabs become spaces, other control characters are removed, and
// anything still outside the code page becomes Placeholder. Rendering therefore
// never fails on Unicode input, but it is lossy: emoji, CJK, Cyrillic and most
// math symbols come out as '?'. The second return counts the replacements.
func Sanitize(s string) (string, int) {
	if s == "" {
		return s, 0
	}
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	replaced := 0
	for _, r := range s {
		switch {
		case r == '\t':
			b.WriteString("    ")
		case r == '\n':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		case r == unicode.ReplacementChar:
			b.WriteRune(Placeholder)
			replaced++
		default:
			if _, ok := charmap.Windows1252.EncodeRune(r); ok {
				b.WriteRune(r)
			} else {
				b.WriteRune(Placeholder)
				replaced++
			}
		}
	}
	return b.String(), replaced
}

// toWinAnsi encodes already sanitized text to the single-byte string fpdf's
// core fonts expect.
func toWinAnsi(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = Placeholder
		}
		out = append(out, c)
	}
	return string(out)
}
