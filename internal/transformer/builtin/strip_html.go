package builtin

import (
	"html"
	"strings"

	"emailextract/internal/config"
	"emailextract/internal/schema"
	"emailextract/internal/transformer"
	"emailextract/pkg/records"
)

// KindStripHTML is the transform kind used in pipeline files.
const KindStripHTML = "strip_html"

// StripHTML removes <...> markup from text fields, decodes character
// references and collapses whitespace runs. Running it ahead of
// email_extract lets addresses written as "a&#64;b.com" or wrapped in
// mailto links reach the extractor as plain text.
//
// Fields lists the fields to clean; when empty every string field is
// cleaned. Names missing from the schema are ignored. One record is emitted
// per input and the schema is unchanged.
type StripHTML struct {
	Fields []string

	positions []int
	all       bool
}

var _ transformer.Step = (*StripHTML)(nil)

// NewStripHTML reads options.fields ([]string).
func NewStripHTML(o config.Options) *StripHTML {
	return &StripHTML{Fields: o.StringSlice("fields")}
}

func (s *StripHTML) OutputSchema(in schema.Schema) schema.Schema { return in }

func (s *StripHTML) Setup(in schema.Schema) error {
	s.positions = s.positions[:0]
	s.all = len(s.Fields) == 0
	for _, name := range s.Fields {
		if pos, ok := schema.Resolve(in, name); ok {
			s.positions = append(s.positions, pos)
		}
	}
	return nil
}

// Process cleans a copy of rec; rec is not mutated.
func (s *StripHTML) Process(rec records.Record, emit transformer.Emit) error {
	out := rec
	copied := false
	clean := func(i int) {
		v, ok := rec.Get(i).(string)
		if !ok {
			return
		}
		n := CleanMarkup(v)
		if n == v {
			return
		}
		if !copied {
			out = rec.Clone()
			copied = true
		}
		out.V[i] = n
	}
	if s.all {
		for i := range rec.V {
			clean(i)
		}
	} else {
		for _, pos := range s.positions {
			clean(pos)
		}
	}
	return emit(out)
}

// CleanMarkup strips tags, unescapes entities and collapses whitespace.
// Tags are removed before unescaping so "&lt;b&gt;" survives as text.
func CleanMarkup(s string) string {
	if s == "" {
		return s
	}
	return CollapseWhitespace(html.UnescapeString(StripTags(s)))
}

// StripTags drops every <...> sequence from s, delimiters included. A tag is
// replaced by a single space so words on either side stay apart. It is a
// scanner, not an HTML parser: '>' inside attribute values ends the tag.
func StripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CollapseWhitespace folds runs of ASCII whitespace and NBSP into one space
// and trims both ends.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f', '\u00a0':
			pending = b.Len() > 0
		default:
			if pending {
				b.WriteByte(' ')
				pending = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
