package sqlite

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"emailextract/internal/storage"
)

func newMemRepo(tb testing.TB, table string) *Repository {
	tb.Helper()
	r, closeFn, err := NewRepository(context.Background(), Config{DSN: ":memory:", Table: table})
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(closeFn)
	return r
}

func selectAll(t *testing.T, r *Repository, q string) [][]sql.NullString {
	t.Helper()
	rows, err := r.db.QueryContext(context.Background(), q)
	if err != nil {
		t.Fatalf("query %q: %v", q, err)
	}
	defer rows.Close()
	cols, _ := rows.Columns()
	var out [][]sql.NullString
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

// TestEnsureTableAndCopyFrom bootstraps the table through the registered DDL
// and inserts a fan-out batch, including a pass-through row with a NULL
// email.
func TestEnsureTableAndCopyFrom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newMemRepo(t, "emails")
	w := &wrappedRepo{Repository: r}
	cols := []string{"id", "email"}

	if err := storage.EnsureTable(ctx, "sqlite", w, "emails", cols); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// Idempotent.
	if err := storage.EnsureTable(ctx, "sqlite", w, "emails", cols); err != nil {
		t.Fatalf("EnsureTable (again): %v", err)
	}

	rows := [][]any{{"1", "a@b.com"}, {"1", "c@d.org"}, {"2", nil}}
	n, err := w.CopyFrom(ctx, cols, rows)
	if err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}

	got := selectAll(t, r, `SELECT id, email FROM emails ORDER BY rowid`)
	want := [][]sql.NullString{
		{{String: "1", Valid: true}, {String: "a@b.com", Valid: true}},
		{{String: "1", Valid: true}, {String: "c@d.org", Valid: true}},
		{{String: "2", Valid: true}, {}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %#v\nwant %#v", got, want)
	}
}

func TestCopyFrom_QuotesIdentifiers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newMemRepo(t, "odd table")
	cols := []string{"select", `we"ird`}
	if err := r.Exec(ctx, createTableSQL("odd table", cols)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CopyFrom(ctx, cols, [][]any{{"x", "y"}}); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	got := selectAll(t, r, `SELECT "select", "we""ird" FROM "odd table"`)
	if len(got) != 1 || got[0][0].String != "x" || got[0][1].String != "y" {
		t.Fatalf("rows = %#v", got)
	}
}

func TestCopyFrom_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newMemRepo(t, "t")
	if err := r.Exec(ctx, createTableSQL("t", []string{"a", "b"})); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := r.CopyFrom(ctx, nil, [][]any{{"x"}}); err == nil {
		t.Fatal("expected error for empty columns")
	}
	if _, err := r.CopyFrom(ctx, []string{"a", "b"}, [][]any{{"x", "y"}, {"short"}}); err == nil {
		t.Fatal("expected error for row width mismatch")
	}
	// The failed batch must be rolled back as a whole.
	if got := selectAll(t, r, `SELECT a FROM t`); len(got) != 0 {
		t.Fatalf("rows after rollback = %d, want 0", len(got))
	}
	if n, err := r.CopyFrom(ctx, []string{"a"}, nil); n != 0 || err != nil {
		t.Fatalf("CopyFrom(nil) = %d, %v", n, err)
	}
}

func TestExec_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	r := newMemRepo(t, "t")
	if err := r.Exec(context.Background(), "   "); err != nil {
		t.Fatalf("Exec(blank) = %v", err)
	}
	if err := r.Exec(context.Background(), "NOT SQL"); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func BenchmarkCopyFrom(b *testing.B) {
	ctx := context.Background()
	r := newMemRepo(b, "bench")
	cols := []string{"id", "email"}
	if err := r.Exec(ctx, createTableSQL("bench", cols)); err != nil {
		b.Fatalf("create: %v", err)
	}
	rows := make([][]any, 1000)
	for i := range rows {
		rows[i] = []any{"1", "someone@example.com"}
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if _, err := r.CopyFrom(ctx, cols, rows); err != nil {
			b.Fatal(err)
		}
	}
}
