// Package csvfile implements the "csv" storage kind: rows are written to a
// delimited file (or stdout) with encoding/csv.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"emailextract/internal/storage"
)

// ErrExecUnsupported is returned by Exec; a file sink has no statements.
var ErrExecUnsupported = errors.New("csv sink: Exec not supported")

// Config holds csv sink configuration.
type Config struct {
	Path   string // "" or "-" writes to stdout
	Comma  rune   // 0 means ','
	Header bool   // write column names before the first row
}

// Repository writes rows to a csv.Writer. It is safe for use by one loader
// at a time; the mutex only guards Close racing a late CopyFrom.
type Repository struct {
	mu      sync.Mutex
	w       *csv.Writer
	closer  io.Closer
	header  bool
	written bool
}

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

// NewRepository opens cfg.Path (truncating it) or wraps stdout.
func NewRepository(cfg Config) (*Repository, error) {
	var (
		dst    io.Writer
		closer io.Closer
	)
	if cfg.Path == "" || cfg.Path == "-" {
		dst = stdout
	} else {
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("csv sink: create %s: %w", cfg.Path, err)
		}
		dst, closer = f, f
	}
	return newWithWriter(dst, closer, cfg), nil
}

func newWithWriter(dst io.Writer, closer io.Closer, cfg Config) *Repository {
	w := csv.NewWriter(dst)
	if cfg.Comma != 0 {
		w.Comma = cfg.Comma
	}
	return &Repository{w: w, closer: closer, header: cfg.Header}
}

// CopyFrom writes rows and flushes. nil values are written as empty fields.
func (r *Repository) CopyFrom(_ context.Context, columns []string, rows [][]any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.header && !r.written {
		if err := r.w.Write(columns); err != nil {
			return 0, fmt.Errorf("csv sink: header: %w", err)
		}
	}
	r.written = true

	rec := make([]string, len(columns))
	var n int64
	for i, row := range rows {
		if len(row) != len(columns) {
			r.w.Flush()
			return n, fmt.Errorf("csv sink: row %d has %d values, want %d", i, len(row), len(columns))
		}
		for j, v := range row {
			rec[j] = toString(v)
		}
		if err := r.w.Write(rec); err != nil {
			return n, fmt.Errorf("csv sink: write: %w", err)
		}
		n++
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return n, fmt.Errorf("csv sink: flush: %w", err)
	}
	return n, nil
}

// Exec always fails; the csv sink has no DDL.
func (r *Repository) Exec(context.Context, string) error { return ErrExecUnsupported }

// Close flushes and closes the file (stdout is left open).
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if r.closer != nil {
		_ = r.closer.Close()
		r.closer = nil
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("csv", func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(Config{Path: cfg.Path, Comma: cfg.Comma, Header: cfg.Header})
	})
}
