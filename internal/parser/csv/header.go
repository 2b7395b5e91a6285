package csv

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// foldDiacritics strips combining marks: "Poznámka" -> "Poznamka".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CanonicalName turns a raw header cell into a field name: diacritics are
// folded, the result is lower-cased and runs of whitespace become "_".
func CanonicalName(raw string) string {
	s := strings.ToLower(foldDiacritics(strings.TrimSpace(raw)))
	return strings.Join(strings.Fields(s), "_")
}

// HeaderNames resolves the header row into unique field names.
//
// The first cell loses a UTF-8 BOM. A cell found in headerMap (by its trimmed
// raw text) takes the mapped name; otherwise it is canonicalized when
// canonical is true, or kept trimmed as is. Empty names become col_<i> and
// repeated names get a _2, _3, ... suffix.
func HeaderNames(h []string, headerMap map[string]string, canonical bool) []string {
	res := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimSpace(strings.TrimPrefix(c, utf8BOM))
		}

		name, ok := headerMap[c]
		if !ok {
			name = c
			if canonical {
				name = CanonicalName(c)
			}
		}
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name]++
		res[i] = name
	}
	return res
}
