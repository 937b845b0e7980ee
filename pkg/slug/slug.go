// Package slug derives URL-safe identifiers from titles and allocates them
// uniquely within a caller-defined scope.
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

const fallbackAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Slugify lowercases text, strips diacritics, turns whitespace runs into a
// single hyphen and drops everything outside [a-z0-9-]. Input made only of
// symbols yields "".
func Slugify(text string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), text)
	if err != nil {
		stripped = text
	}

	s := strings.ToLower(stripped)
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = disallowed.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Fallback returns a non-empty slug for titles that Slugify reduces to "".
func Fallback(prefix string) string {
	suffix, err := gonanoid.Generate(fallbackAlphabet, 6)
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().Unix(), suffix)
}

// FromTitle slugifies title, falling back to Fallback(prefix) when nothing
// URL-safe remains.
func FromTitle(title, prefix string) string {
	if s := Slugify(title); s != "" {
		return s
	}
	return Fallback(prefix)
}
