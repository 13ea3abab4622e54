package blizzard

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugSeparators = regexp.MustCompile(`['\s]`)
	slugDashes     = regexp.MustCompile(`-{2,}`)
)

// NormalizeRealmSlug turns a display realm name into the upstream slug:
// "Pozzo dell'Eternità" becomes "pozzo-dell-eternita".
func NormalizeRealmSlug(realm string) string {
	s := strings.ToLower(realm)
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), s)
	if err == nil {
		s = stripped
	}
	s = slugSeparators.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
