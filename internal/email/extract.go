// Package email finds email-like substrings in free text and checks them
// against a practical address syntax.
//
// Finding and accepting are deliberately separate: the lexical pattern used
// by Extract tolerates surrounding noise, while Valid decides whether a
// candidate is a plausible address. Either side can be replaced without
// touching the other.
package email

import (
	"fmt"
	"regexp"
)

// candidateExpr matches a local part made of atext characters and dots, an
// '@', and a domain of letters, digits, dots and hyphens. Both letter cases
// are listed explicitly, so no (?i) flag is needed; that also keeps the
// match ASCII-only (Go case folding would admit U+017F and U+212A).
const candidateExpr = "[A-Za-z0-9_!#$%&'*+/=?`{|}~^.\\-]+@[A-Za-z0-9.\\-]+"

var candidateRE = regexp.MustCompile(candidateExpr)

// Pattern returns the compiled candidate pattern.
func Pattern() *regexp.Regexp { return candidateRE }

// Extract returns every non-overlapping candidate in text, left to right.
// Duplicates are kept as found. Matching spans line breaks freely because the
// pattern has no anchors. An empty text yields nil.
//
// The scan is a single RE2 pass, linear in len(text).
func Extract(text string) []string {
	if text == "" {
		return nil
	}
	return candidateRE.FindAllString(text, -1)
}

// ExtractValue is Extract for an arbitrary field value: nil yields no
// candidates, strings and byte slices are scanned directly, anything else is
// rendered with fmt.Sprint first.
func ExtractValue(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return Extract(t)
	case []byte:
		return Extract(string(t))
	case fmt.Stringer:
		return Extract(t.String())
	default:
		return Extract(fmt.Sprint(t))
	}
}
