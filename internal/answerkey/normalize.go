package answerkey

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle folds a title for duplicate detection: trim, uppercase,
// NFD decomposition with combining marks removed. "José" and "JOSE " collide.
func NormalizeTitle(title string) string {
	s := strings.ToUpper(strings.TrimSpace(title))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
