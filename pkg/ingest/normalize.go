package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize is the single normalization rule for every textual value that
// crosses the decoder boundary: trim, lowercase, strip combining marks
// (São Paulo -> sao paulo). Header comparison and all store lookups go
// through it, so "SÁBADO", "sabado" and "Sábado " are the same token.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
