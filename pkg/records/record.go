// Package records defines the positional record passed between pipeline
// stages.
package records

// Record is one row aligned to a schema.Schema: V[i] holds the value of
// field i (nil when absent). Line is the 1-based source line, kept for
// diagnostics only.
//
// A Record is treated as immutable once read. Transforms derive new records
// with With instead of writing into V.
type Record struct {
	Line int
	V    []any
}

// New returns a record holding vals.
func New(line int, vals ...any) Record {
	return Record{Line: line, V: vals}
}

// Len returns the number of slots.
func (r Record) Len() int { return len(r.V) }

// Get returns the value at pos, or nil when pos is out of range.
func (r Record) Get(pos int) any {
	if pos < 0 || pos >= len(r.V) {
		return nil
	}
	return r.V[pos]
}

// With returns an independent copy of r with slot pos set to v. The copy
// never shares its backing array with r, so sibling outputs built from the
// same input cannot observe each other. When pos is beyond the current
// width the copy is padded with nil up to pos.
func (r Record) With(pos int, v any) Record {
	n := len(r.V)
	if pos >= n {
		n = pos + 1
	}
	out := Record{Line: r.Line, V: make([]any, n)}
	copy(out.V, r.V)
	if pos >= 0 {
		out.V[pos] = v
	}
	return out
}

// Resize returns r padded with nil up to n slots. When r is already at
// least n wide it is returned as is.
func (r Record) Resize(n int) Record {
	if len(r.V) >= n {
		return r
	}
	out := Record{Line: r.Line, V: make([]any, n)}
	copy(out.V, r.V)
	return out
}

// Clone returns a deep copy of the slot slice.
func (r Record) Clone() Record {
	out := Record{Line: r.Line, V: make([]any, len(r.V))}
	copy(out.V, r.V)
	return out
}
