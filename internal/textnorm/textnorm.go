// Package textnorm folds free text typed by customers and admins so that it can
// be compared: accents stripped, lower case, single spaces.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s without diacritics, lower-cased, with runs of whitespace
// collapsed to one space and the ends trimmed. "  Dulce de LECHÉ " becomes
// "dulce de leche".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
