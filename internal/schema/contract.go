// Package schema describes the shape of the records flowing through a
// pipeline: an ordered list of named, typed fields.
package schema

import (
	"errors"
	"fmt"
)

// ErrFieldNotFound is returned by MustResolve when a configured field name is
// not part of the schema.
var ErrFieldNotFound = errors.New("field not found in schema")

// Field describes a single column.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // "text" | "int" | "bool" | "date"
}

// Schema is the ordered set of fields describing a record. Field names are
// unique within a schema.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// FromNames builds a text-typed schema from an ordered list of column names.
func FromNames(names ...string) Schema {
	fs := make([]Field, len(names))
	for i, n := range names {
		fs[i] = Field{Name: n, Type: "text"}
	}
	return Schema{Fields: fs}
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.Fields) }

// Names returns the ordered field names.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Resolve returns the position of the field called name. The second result
// is false when the name is empty or not present; callers treat that as a
// named outcome rather than a fault.
func Resolve(s Schema, name string) (int, bool) {
	if name == "" {
		return -1, false
	}
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// MustResolve is Resolve for callers that want an error value.
func MustResolve(s Schema, name string) (int, error) {
	if pos, ok := Resolve(s, name); ok {
		return pos, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
}

// With returns a copy of s with f appended. When a field with the same name
// already exists the copy is returned unchanged, so upstream fields are
// reused rather than duplicated.
func (s Schema) With(f Field) Schema {
	out := Schema{Fields: make([]Field, len(s.Fields), len(s.Fields)+1)}
	copy(out.Fields, s.Fields)
	if _, ok := Resolve(s, f.Name); ok || f.Name == "" {
		return out
	}
	if f.Type == "" {
		f.Type = "text"
	}
	out.Fields = append(out.Fields, f)
	return out
}

// Validate reports duplicate or empty field names.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema: field %d has an empty name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
