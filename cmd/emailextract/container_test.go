package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"emailextract/internal/config"
	"emailextract/internal/storage"
	"emailextract/internal/transformer/builtin"
)

// fakeRepo captures everything the loader hands to storage.
type fakeRepo struct {
	mu      sync.Mutex
	columns []string
	rows    [][]any
	execs   []string
	copyErr error
	closed  bool
}

func (f *fakeRepo) CopyFrom(_ context.Context, columns []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.columns = columns
	f.rows = append(f.rows, rows...)
	return int64(len(rows)), nil
}

func (f *fakeRepo) Exec(_ context.Context, stmt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, stmt)
	return nil
}

func (f *fakeRepo) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// useFakeRepo points newRepositoryFn at repo for the duration of the test.
// Tests that call it must not run in parallel.
func useFakeRepo(t *testing.T, repo *fakeRepo) *storage.Config {
	t.Helper()
	var got storage.Config
	orig := newRepositoryFn
	newRepositoryFn = func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		got = cfg
		return repo, nil
	}
	t.Cleanup(func() { newRepositoryFn = orig })
	return &got
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func testPipeline(path string) config.Pipeline {
	return config.Pipeline{
		Job:    "test",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: path}},
		Parser: config.Parser{Kind: "csv"},
		Transform: []config.Transform{{
			Kind: builtin.KindEmailExtract,
			Options: config.Options{
				"input_field":  "notes",
				"output_field": "email",
			},
		}},
		Storage: config.Storage{
			Kind: "fake",
			DB:   config.DBConfig{Table: "emails", Columns: []string{"id", "email"}},
		},
		Runtime: config.RuntimeConfig{TransformWorkers: 1, BatchSize: 2, ChannelBuffer: 4},
	}
}

const sampleInput = "id,notes\n" +
	"1,write a@x.com or b@y.org\n" +
	"2,no address here\n" +
	"3,c@z.net\n"

func TestRunStreamed_FanOutAndPassThrough(t *testing.T) {
	repo := &fakeRepo{}
	useFakeRepo(t, repo)

	sum, err := runStreamed(context.Background(), testPipeline(writeInput(t, sampleInput)))
	if err != nil {
		t.Fatalf("runStreamed: %v", err)
	}

	want := [][]any{
		{"1", "a@x.com"},
		{"1", "b@y.org"},
		{"2", nil},
		{"3", "c@z.net"},
	}
	if !reflect.DeepEqual(repo.rows, want) {
		t.Fatalf("rows = %#v\nwant %#v", repo.rows, want)
	}
	if !reflect.DeepEqual(repo.columns, []string{"id", "email"}) {
		t.Fatalf("columns = %v", repo.columns)
	}
	if !repo.closed {
		t.Fatal("repository not closed")
	}

	if sum.Read != 3 || sum.Loaded != 4 || sum.Inserted != 4 || sum.Batches != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	e := sum.Extract
	if e.In != 3 || e.Emitted != 4 || e.PassThrough != 1 || e.FanOut != 3 || e.Candidates != 3 {
		t.Fatalf("extract stats = %+v", e)
	}
	if e.Emitted != e.PassThrough+e.FanOut {
		t.Fatalf("emitted %d != passthrough %d + fanout %d", e.Emitted, e.PassThrough, e.FanOut)
	}
}

func TestSamplePipeline(t *testing.T) {
	p, err := config.Load(filepath.Join("..", "..", "configs", "pipelines", "sample.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if issues := config.ValidatePipeline(p); config.HasErrors(issues) {
		t.Fatalf("sample pipeline has errors: %v", issues)
	}

	// Paths in the sample are relative to the repository root.
	p.Source.File.Path = filepath.Join("..", "..", p.Source.File.Path)
	p.Storage = config.Storage{Kind: "fake", DB: config.DBConfig{Table: "emails", Columns: p.Storage.CSV.Columns}}
	repo := &fakeRepo{}
	useFakeRepo(t, repo)

	if _, err := runStreamed(context.Background(), p); err != nil {
		t.Fatalf("runStreamed: %v", err)
	}
	want := [][]any{
		{"1", "Jan Novak", "jan.novak@example.com"},
		{"1", "Jan Novak", "sales@example.org"},
		{"2", "Eva Svobodova", "eva@example.net"},
		{"3", "Petr Dvorak", nil},
		{"4", "Acme s.r.o.", "invoices@acme.example.com"},
	}
	if !reflect.DeepEqual(repo.rows, want) {
		t.Fatalf("rows = %#v\nwant %#v", repo.rows, want)
	}
}

func TestRunStreamed_ManyWorkersKeepEveryRecord(t *testing.T) {
	repo := &fakeRepo{}
	useFakeRepo(t, repo)

	var b strings.Builder
	b.WriteString("id,notes\n")
	const n = 50
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,user%d@example.com\n", i, i)
	}
	p := testPipeline(writeInput(t, b.String()))
	p.Runtime.TransformWorkers = 3
	p.Runtime.BatchSize = 7

	sum, err := runStreamed(context.Background(), p)
	if err != nil {
		t.Fatalf("runStreamed: %v", err)
	}
	if len(repo.rows) != n || sum.Extract.In != n || sum.Extract.FanOut != n {
		t.Fatalf("rows=%d summary=%+v", len(repo.rows), sum)
	}

	got := make([]string, 0, n)
	for _, r := range repo.rows {
		got = append(got, r[1].(string))
	}
	sort.Strings(got)
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprintf("user%d@example.com", i))
	}
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("emails = %v", got)
	}
}

func TestRunStreamed_MissingInputFieldPassesThrough(t *testing.T) {
	repo := &fakeRepo{}
	useFakeRepo(t, repo)

	p := testPipeline(writeInput(t, sampleInput))
	p.Transform[0].Options["input_field"] = "comments"

	sum, err := runStreamed(context.Background(), p)
	if err != nil {
		t.Fatalf("runStreamed: %v", err)
	}
	if len(repo.rows) != 3 || sum.Extract.PassThrough != 3 || sum.Extract.FanOut != 0 {
		t.Fatalf("rows=%v summary=%+v", repo.rows, sum)
	}
	for _, r := range repo.rows {
		if r[1] != nil {
			t.Fatalf("expected nil email, got %#v", r)
		}
	}
}

func TestRunStreamed_LoaderErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	repo := &fakeRepo{copyErr: boom}
	useFakeRepo(t, repo)

	_, err := runStreamed(context.Background(), testPipeline(writeInput(t, sampleInput)))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !repo.closed {
		t.Fatal("repository not closed after failure")
	}
}

func TestRunStreamed_UnknownSinkColumn(t *testing.T) {
	repo := &fakeRepo{}
	cfg := useFakeRepo(t, repo)

	p := testPipeline(writeInput(t, sampleInput))
	p.Storage.DB.Columns = []string{"id", "phone"}

	_, err := runStreamed(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "sink columns") {
		t.Fatalf("err = %v", err)
	}
	if cfg.Kind != "" {
		t.Fatalf("repository opened despite bad columns: %+v", *cfg)
	}
}

func TestRunStreamed_AutoCreateTable(t *testing.T) {
	repo := &fakeRepo{}
	useFakeRepo(t, repo)

	var (
		gotKind, gotTable string
		gotCols           []string
	)
	orig := ensureTableFn
	ensureTableFn = func(_ context.Context, kind string, _ storage.Repository, table string, columns []string) error {
		gotKind, gotTable, gotCols = kind, table, columns
		return nil
	}
	t.Cleanup(func() { ensureTableFn = orig })

	p := testPipeline(writeInput(t, sampleInput))
	p.Storage.DB.AutoCreateTable = true
	p.Storage.DB.Columns = nil

	if _, err := runStreamed(context.Background(), p); err != nil {
		t.Fatalf("runStreamed: %v", err)
	}
	if gotKind != "fake" || gotTable != "emails" || !reflect.DeepEqual(gotCols, []string{"id", "notes", "email"}) {
		t.Fatalf("ensureTable(%q, %q, %v)", gotKind, gotTable, gotCols)
	}
}

func TestRunStreamed_UnsupportedSource(t *testing.T) {
	repo := &fakeRepo{}
	useFakeRepo(t, repo)

	p := testPipeline("")
	p.Source.Kind = "ftp"
	if _, err := runStreamed(context.Background(), p); err == nil {
		t.Fatal("expected error for unsupported source")
	}
}

func TestRunStreamed_SQLiteEndToEnd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	p := testPipeline(writeInput(t, sampleInput))
	p.Storage = config.Storage{
		Kind: "sqlite",
		DB: config.DBConfig{
			DSN:             dbPath,
			Table:           "emails",
			Columns:         []string{"id", "email"},
			AutoCreateTable: true,
		},
	}

	if _, err := runStreamed(context.Background(), p); err != nil {
		t.Fatalf("runStreamed: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT id, email FROM emails ORDER BY rowid`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var id string
		var email sql.NullString
		if err := rows.Scan(&id, &email); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, id+"="+email.String)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	want := []string{"1=a@x.com", "1=b@y.org", "2=", "3=c@z.net"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

func TestStorageConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   config.Storage
		want storage.Config
	}{
		{
			name: "db",
			in: config.Storage{Kind: "postgres", DB: config.DBConfig{
				DSN: "postgres://u@h/db", Table: "public.emails",
			}},
			want: storage.Config{Kind: "postgres", DSN: "postgres://u@h/db", Table: "public.emails"},
		},
		{
			name: "mongo",
			in: config.Storage{Kind: "mongo", DB: config.DBConfig{
				DSN: "mongodb://h", Database: "crm", Table: "emails",
			}},
			want: storage.Config{Kind: "mongo", DSN: "mongodb://h", Database: "crm", Table: "emails"},
		},
		{
			name: "csv default comma",
			in:   config.Storage{Kind: "csv", CSV: config.CSVConfig{Path: "out.csv", Header: true}},
			want: storage.Config{Kind: "csv", Path: "out.csv", Header: true, Comma: ','},
		},
		{
			name: "csv semicolon",
			in:   config.Storage{Kind: "csv", CSV: config.CSVConfig{Path: "-", Comma: ";"}},
			want: storage.Config{Kind: "csv", Path: "-", Comma: ';'},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := storageConfig(tc.in); got != tc.want {
				t.Fatalf("storageConfig = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSinkColumns(t *testing.T) {
	t.Parallel()

	s := config.Storage{
		Kind: "csv",
		DB:   config.DBConfig{Columns: []string{"a"}},
		CSV:  config.CSVConfig{Columns: []string{"b"}},
	}
	if got := sinkColumns(s); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("csv sinkColumns = %v", got)
	}
	s.Kind = "mysql"
	if got := sinkColumns(s); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("db sinkColumns = %v", got)
	}
}

func TestNewRuntimeConfig_EnvAndDefaults(t *testing.T) {
	t.Setenv("EMAILX_TRANSFORM_WORKERS", "6")
	t.Setenv("EMAILX_BATCH_SIZE", "")
	t.Setenv("EMAILX_CH_BUFFER", "not-a-number")

	rt := newRuntimeConfig(config.Pipeline{})
	want := runtimeConfig{transformers: 6, batchSize: 5000, bufferSize: 1024, maxErrors: defaultMaxErrors}
	if rt != want {
		t.Fatalf("rt = %+v, want %+v", rt, want)
	}

	rt = newRuntimeConfig(config.Pipeline{Runtime: config.RuntimeConfig{TransformWorkers: 2, BatchSize: 10, MaxErrors: 9}})
	if rt.transformers != 2 || rt.batchSize != 10 || rt.maxErrors != 9 {
		t.Fatalf("config values should win over env: %+v", rt)
	}
}

func TestPickInt(t *testing.T) {
	t.Parallel()

	if v := pickInt(5, 9); v != 5 {
		t.Fatalf("pickInt(5,9) = %d, want 5", v)
	}
	if v := pickInt(0, 9); v != 9 {
		t.Fatalf("pickInt(0,9) = %d, want 9", v)
	}
	if v := pickInt(-1, 9); v != 9 {
		t.Fatalf("pickInt(-1,9) = %d, want 9", v)
	}
}

func TestErrAgg_LimitsAndBuckets(t *testing.T) {
	t.Parallel()

	a := newErrAgg(2)
	a.add(1, errors.New("x"))
	a.add(2, errors.New("y"))
	a.add(3, errors.New("x"))

	count, first := a.snapshot()
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if !reflect.DeepEqual(first, []string{"line=1: x", "line=2: y"}) {
		t.Fatalf("first = %v", first)
	}
	if a.kinds() != 2 {
		t.Fatalf("kinds = %d, want 2", a.kinds())
	}
}

func TestErrAgg_TopGroupsByMessage(t *testing.T) {
	t.Parallel()

	a := newErrAgg(1)
	for i, msg := range []string{"bad quote", "short row", "bad quote", "b", "a", "bad quote", "short row"} {
		a.add(i+1, errors.New(msg))
	}
	want := []errBucket{{"bad quote", 3}, {"short row", 2}, {"a", 1}}
	if got := a.top(3); !reflect.DeepEqual(got, want) {
		t.Fatalf("top(3) = %v, want %v", got, want)
	}
	if got := a.top(10); len(got) != 4 {
		t.Fatalf("top(10) returned %d buckets, want 4", len(got))
	}
}

func TestErrAgg_ConcurrentAdds(t *testing.T) {
	t.Parallel()

	a := newErrAgg(5)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a.add(j, errors.New("e"))
			}
		}()
	}
	wg.Wait()

	count, first := a.snapshot()
	if top := a.top(1); count != 1000 || len(first) != 5 || len(top) != 1 || top[0].n != 1000 {
		t.Fatalf("count=%d first=%d top=%v", count, len(first), top)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Fatalf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("firstNonEmpty() = %q", got)
	}
}
