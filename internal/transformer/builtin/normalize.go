package builtin

import (
	"strings"

	"emailextract/internal/schema"
	"emailextract/internal/transformer"
	"emailextract/pkg/records"
)

// KindNormalize is the transform kind used in pipeline files.
const KindNormalize = "normalize"

const nbspace = "\u00a0"

// Normalize trims surrounding whitespace from string fields and replaces
// non-breaking spaces with plain spaces. Other values pass untouched. It
// emits exactly one record per input and never changes the schema.
type Normalize struct{}

var _ transformer.Step = Normalize{}

func (Normalize) OutputSchema(in schema.Schema) schema.Schema { return in }

func (Normalize) Setup(schema.Schema) error { return nil }

// Process writes the normalized values into a copy; rec is not mutated.
func (Normalize) Process(rec records.Record, emit transformer.Emit) error {
	out := rec
	copied := false
	for i, v := range rec.V {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n := NormalizeString(s)
		if n == s {
			continue
		}
		if !copied {
			out = rec.Clone()
			copied = true
		}
		out.V[i] = n
	}
	return emit(out)
}

// NormalizeString replaces NBSP with a space and trims the result.
func NormalizeString(s string) string {
	if strings.Contains(s, nbspace) {
		s = strings.ReplaceAll(s, nbspace, " ")
	} else if !HasEdgeSpace(s) {
		return s
	}
	return strings.TrimSpace(s)
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isASCIISpace(s[0]) || isASCIISpace(s[len(s)-1])
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
