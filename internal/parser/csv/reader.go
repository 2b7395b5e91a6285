// Package csv streams CSV input into schema-aligned records. The header row
// (or the configured column list) defines the schema; every data row becomes
// one records.Record with string values, empty cells as nil.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"emailextract/internal/config"
	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// ErrNoColumns is returned when neither a header row nor options.columns
// names the fields.
var ErrNoColumns = errors.New("csv: no columns (has_header=false and options.columns empty)")

// logEveryN controls the reader progress heartbeat.
const logEveryN = 50_000

// Options configures the reader. FromConfig fills it from parser options.
type Options struct {
	HasHeader bool
	// Canonical folds header names (see CanonicalName). Default true.
	Canonical bool
	Comma     rune
	TrimSpace bool
	// LazyQuotes relaxes quote handling in encoding/csv.
	LazyQuotes bool
	// Columns names the fields when HasHeader is false. When a header is
	// present it is ignored.
	Columns   []string
	HeaderMap map[string]string
	// Replace holds byte-level find/replace pairs applied to the stream
	// before parsing, for inputs with known broken sequences.
	Replace [][2]string
}

// FromConfig reads Options from parser.options:
//
//	has_header (bool, true), canonical_headers (bool, true), comma (string, ","),
//	trim_space (bool, true), lazy_quotes (bool), columns ([]string),
//	header_map (object), replace (object: pattern -> replacement)
func FromConfig(o config.Options) Options {
	repl := o.StringMap("replace")
	keys := make([]string, 0, len(repl))
	for k := range repl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, repl[k]})
	}

	return Options{
		HasHeader:  o.Bool("has_header", true),
		Canonical:  o.Bool("canonical_headers", true),
		Comma:      o.Rune("comma", ','),
		TrimSpace:  o.Bool("trim_space", true),
		LazyQuotes: o.Bool("lazy_quotes", false),
		Columns:    o.StringSlice("columns"),
		HeaderMap:  o.StringMap("header_map"),
		Replace:    pairs,
	}
}

// Reader streams records from one CSV input.
type Reader struct {
	src    io.ReadCloser
	cr     *csv.Reader
	opt    Options
	schema schema.Schema
}

// NewReader wraps src and consumes the header row (when configured) so the
// schema is known before streaming starts. The reader owns src and closes
// it when Stream returns, or immediately when NewReader fails.
func NewReader(src io.ReadCloser, opt Options) (*Reader, error) {
	cr := csv.NewReader(wrapReplacements(src, opt.Replace))
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is checked against the schema
	cr.ReuseRecord = true

	r := &Reader{src: src, cr: cr, opt: opt}

	var names []string
	if opt.HasHeader {
		hdr, err := cr.Read()
		if err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		names = HeaderNames(hdr, opt.HeaderMap, opt.Canonical)
	} else {
		if len(opt.Columns) == 0 {
			_ = src.Close()
			return nil, ErrNoColumns
		}
		names = append([]string(nil), opt.Columns...)
	}

	r.schema = schema.FromNames(names...)
	if err := r.schema.Validate(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("csv: %w", err)
	}
	return r, nil
}

// Schema returns the field layout of emitted records.
func (r *Reader) Schema() schema.Schema { return r.schema }

// Stream sends one record per data row to out until EOF or ctx is done.
//
// Per-row problems (malformed quoting, wrong field count) are soft: they go
// to onErr with the row's line number and the row is skipped. Shorter rows
// are not padded; a width mismatch in either direction is an error. The
// caller closes out.
func (r *Reader) Stream(ctx context.Context, out chan<- records.Record, onErr func(line int, err error)) error {
	defer r.src.Close()

	width := r.schema.Len()
	emitted := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return fmt.Errorf("csv read: %w", err)
			}
			if onErr != nil {
				onErr(pe.StartLine, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		line, _ := r.cr.FieldPos(0)
		if len(row) != width {
			if onErr != nil {
				onErr(line, fmt.Errorf("incorrect number of fields: expected %d, got %d", width, len(row)))
			}
			continue
		}

		vals := make([]any, width)
		for i, v := range row {
			if r.opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				vals[i] = v
			}
		}

		select {
		case out <- records.New(line, vals...):
			emitted++
			if emitted%logEveryN == 0 {
				log.Printf("reader: line=%d emitted=%d", line, emitted)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
