package xlsxio

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccent = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold canonicalizes header text for matching across historical exports:
// accents stripped, lowercased, inner whitespace collapsed, edges trimmed.
// "Núm.  Orden " and "num. orden" fold to the same string.
func Fold(s string) string {
	ascii, _, err := transform.String(deaccent, s)
	if err != nil {
		ascii = s
	}
	return strings.ToLower(strings.Join(strings.Fields(ascii), " "))
}
