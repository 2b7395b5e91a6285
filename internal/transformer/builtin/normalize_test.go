package builtin

import (
	"reflect"
	"testing"

	"emailextract/internal/transformer"
	"emailextract/pkg/records"
)

/*
TestNormalizeProcess_TableDriven verifies the normalization semantics:

  - Replaces U+00A0 NO-BREAK SPACE (NBSP) with ASCII space.
  - Trims leading/trailing ASCII whitespace.
  - Leaves non-string values unchanged.
  - Never mutates the input record.
*/
func TestNormalizeProcess_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []any
		want []any
	}{
		{"no_strings_no_change", []any{1, true, nil}, []any{1, true, nil}},
		{"simple_trim_spaces", []any{" foo ", "\tbar\n"}, []any{"foo", "bar"}},
		{"nbsp_replaced_and_trimmed", []any{" " + nbspace + "foo" + nbspace + " "}, []any{"foo"}},
		{"nbsp_internal_only_not_trimmed", []any{"foo" + nbspace + "bar"}, []any{"foo bar"}},
		{
			"mixed_types_partial_changes",
			[]any{" foo ", "bar" + nbspace, 42, nil, "baz", "\nqux\r", nbspace + " y  "},
			[]any{"foo", "bar", 42, nil, "baz", "qux", "y"},
		},
		{"unchanged_strings_skipped", []any{"foo", "bar"}, []any{"foo", "bar"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := records.New(1, tc.in...)
			orig := rec.Clone()

			out, err := transformer.Collect(Normalize{}, rec)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if len(out) != 1 {
				t.Fatalf("emitted %d records, want 1", len(out))
			}
			if !reflect.DeepEqual(out[0].V, tc.want) {
				t.Fatalf("Normalize mismatch:\n got: %#v\nwant: %#v", out[0].V, tc.want)
			}
			if !reflect.DeepEqual(rec, orig) {
				t.Fatalf("input mutated: %#v, was %#v", rec, orig)
			}
		})
	}
}

/*
TestHasEdgeSpace verifies that HasEdgeSpace detects leading/trailing ASCII
whitespace and ignores interior-only whitespace.
*/
func TestHasEdgeSpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "empty", in: "", want: false},
		{name: "no_spaces", in: "foo", want: false},
		{name: "leading_space", in: " foo", want: true},
		{name: "trailing_space", in: "foo ", want: true},
		{name: "internal_space_only", in: "f oo", want: false},
		{name: "leading_tab", in: "\tfoo", want: true},
		{name: "trailing_newline", in: "foo\n", want: true},
		{name: "trailing_carriage_return", in: "foo\r", want: true},
		{name: "internal_tab_only", in: "f\too", want: false},
		{name: "single_space", in: " ", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HasEdgeSpace(tt.in); got != tt.want {
				t.Fatalf("HasEdgeSpace(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func BenchmarkNormalizeProcess(b *testing.B) {
	rec := records.New(1, " foo ", "bar", "baz"+nbspace+"qux", 123, nil)
	sink := func(records.Record) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Normalize{}.Process(rec, sink)
	}
}
