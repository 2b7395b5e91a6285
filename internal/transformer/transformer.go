// Package transformer defines the per-record step contract used by the
// pipeline and the thin host adapter (ProcessLoop) that drives a step from a
// channel of records.
//
// A step runs a one-time setup against the input schema, then handles
// independent records one at a time, pushing zero or more outputs through
// an Emit callback. Steps hold no cross-record state beyond what Setup
// caches.
package transformer

import (
	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// Emit hands one output record downstream. It may be called zero or more
// times per input record.
type Emit func(records.Record) error

// Step is a single record transform.
type Step interface {
	// OutputSchema derives the schema of emitted records from the input
	// schema. It must be pure; callers use it before any record flows (for
	// example to create a destination table).
	OutputSchema(in schema.Schema) schema.Schema

	// Setup resolves configuration against the input schema and caches the
	// result. It is called once per run, before the first Process.
	Setup(in schema.Schema) error

	// Process handles one record. All outputs for rec must be emitted before
	// Process returns.
	Process(rec records.Record, emit Emit) error
}

// Chain runs steps in order: every record emitted by step i is processed by
// step i+1. Chain itself satisfies Step.
type Chain []Step

// OutputSchema threads the schema through every step.
func (c Chain) OutputSchema(in schema.Schema) schema.Schema {
	out := in
	for _, s := range c {
		out = s.OutputSchema(out)
	}
	return out
}

// Setup sets up each step against the schema produced by its predecessor.
func (c Chain) Setup(in schema.Schema) error {
	cur := in
	for _, s := range c {
		if err := s.Setup(cur); err != nil {
			return err
		}
		cur = s.OutputSchema(cur)
	}
	return nil
}

// Process pushes rec through the chain.
func (c Chain) Process(rec records.Record, emit Emit) error {
	return c.processFrom(0, rec, emit)
}

func (c Chain) processFrom(i int, rec records.Record, emit Emit) error {
	if i == len(c) {
		return emit(rec)
	}
	return c[i].Process(rec, func(r records.Record) error {
		return c.processFrom(i+1, r, emit)
	})
}

// Collect runs rec through s and returns everything it emitted. It is a
// convenience for callers that do not stream.
func Collect(s Step, rec records.Record) ([]records.Record, error) {
	var out []records.Record
	err := s.Process(rec, func(r records.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}
