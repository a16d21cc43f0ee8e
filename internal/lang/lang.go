// Package lang normalizes the language tags transcription services
// attach to their responses. Services disagree on casing and separators
// ("EN", "en_US", "pt-BR"); chunk transcripts store one canonical form so
// a run's per-chunk languages can be compared.
package lang

import (
	"errors"
	"strings"
)

// ErrInvalidTag is returned when a string cannot be read as a language tag.
var ErrInvalidTag = errors.New("lang: invalid language tag")

// Normalize lowercases a tag and converts underscore separators to the
// hyphenated form ("en_US" -> "en-us"). It never fails; garbage in is
// lowercased garbage out, since a transcript's language is informational
// and must not abort a run.
func Normalize(tag string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
}

// Parse normalizes tag and validates its shape: an alphabetic primary
// subtag of 2-8 letters, optionally followed by hyphenated alphanumeric
// subtags of 1-8 characters each.
func Parse(tag string) (string, error) {
	n := Normalize(tag)
	if n == "" {
		return "", ErrInvalidTag
	}

	for i, sub := range strings.Split(n, "-") {
		if !validSubtag(sub, i == 0) {
			return "", errors.Join(ErrInvalidTag, errors.New(tag))
		}
	}
	return n, nil
}

// Primary returns the primary subtag of a normalized tag ("en" from
// "en-us"), or the tag itself when it has no subtags.
func Primary(tag string) string {
	n := Normalize(tag)
	if i := strings.IndexByte(n, '-'); i >= 0 {
		return n[:i]
	}
	return n
}

func validSubtag(sub string, primary bool) bool {
	if len(sub) < 1 || len(sub) > 8 {
		return false
	}
	if primary && len(sub) < 2 {
		return false
	}
	for _, r := range sub {
		alpha := r >= 'a' && r <= 'z'
		digit := r >= '0' && r <= '9'
		if primary && !alpha {
			return false
		}
		if !alpha && !digit {
			return false
		}
	}
	return true
}
