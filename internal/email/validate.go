package email

import (
	"net/mail"
	"strings"
)

// Address length limits (RFC 5321 §4.5.3.1 as commonly applied).
const (
	maxAddressLen = 254
	maxLocalLen   = 64
	maxDomainLen  = 253
	maxLabelLen   = 63
	minTLDLen     = 2
)

// Validator decides whether a candidate is an acceptable address.
// Implementations must be pure: same input, same answer, no shared state.
type Validator interface {
	Valid(candidate string) bool
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(string) bool

// Valid calls f(s).
func (f ValidatorFunc) Valid(s string) bool { return f(s) }

// DefaultValidator applies the package's practical syntax rules (see Valid).
var DefaultValidator Validator = ValidatorFunc(Valid)

// Valid reports whether s, once trimmed of surrounding whitespace, is a
// syntactically plausible address:
//
//   - at most 254 characters, exactly one '@';
//   - a dot-atom local part of 1..64 characters;
//   - a domain of at least two labels, each 1..63 letters, digits or
//     hyphens, not starting or ending with a hyphen, 253 characters max;
//   - an alphabetic top-level label of at least two characters.
//
// Display names ("Ann <a@b.com>"), quoted local parts and domain literals
// are rejected. No network lookup is performed.
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAddressLen {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if !validLocal(local) || !validDomain(domain) {
		return false
	}

	// net/mail confirms the addr-spec grammar; the parsed form must be the
	// bare address, which rules out display names and comments.
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" {
		return false
	}
	return addr.Address == s
}

func validLocal(local string) bool {
	if len(local) == 0 || len(local) > maxLocalLen {
		return false
	}
	if local[0] == '.' || local[len(local)-1] == '.' || strings.Contains(local, "..") {
		return false
	}
	for i := 0; i < len(local); i++ {
		if !isAtext(local[i]) && local[i] != '.' {
			return false
		}
	}
	return true
}

func validDomain(domain string) bool {
	if len(domain) == 0 || len(domain) > maxDomainLen {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !validLabel(l) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < minTLDLen {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if !isAlpha(tld[i]) {
			return false
		}
	}
	return true
}

func validLabel(l string) bool {
	if len(l) == 0 || len(l) > maxLabelLen {
		return false
	}
	if l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for i := 0; i < len(l); i++ {
		c := l[i]
		if !isAlpha(c) && !isDigit(c) && c != '-' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// isAtext reports whether c is an RFC 5322 atext character.
func isAtext(c byte) bool {
	if isAlpha(c) || isDigit(c) {
		return true
	}
	return strings.IndexByte("!#$%&'*+-/=?^_`{|}~", c) >= 0
}

// Filter returns the trimmed candidates that v accepts, in input order. A nil
// v uses DefaultValidator.
func Filter(candidates []string, v Validator) []string {
	if v == nil {
		v = DefaultValidator
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if v.Valid(c) {
			out = append(out, c)
		}
	}
	return out
}
