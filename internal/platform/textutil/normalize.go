package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldASCII strips diacritics from the input so it can be printed on carrier
// label documents that only accept basic Latin characters.
func FoldASCII(value string) string {
	out, _, err := transform.String(asciiFold, value)
	if err != nil {
		return value
	}
	return out
}

// NormalizeLabelText collapses whitespace and strips diacritics for carrier
// manifests. Runs that are not printable ASCII after folding are dropped.
func NormalizeLabelText(value string) string {
	folded := FoldASCII(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := false
	for _, r := range folded {
		if unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		if r < 0x20 || r > 0x7e {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}
