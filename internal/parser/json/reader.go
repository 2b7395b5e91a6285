// Package json streams JSON input into schema-aligned records.
//
// Accepted shapes:
//
//   - root array of objects: [ {...}, {...} ]
//   - envelope object holding an array of objects: { "records": [...] }
//   - single object: { ... } (one record)
//   - newline-delimited objects (NDJSON), one record each
//
// Values are rendered as strings (numbers keep their literal text, nested
// objects and arrays become compact JSON); null becomes nil.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"emailextract/internal/config"
	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// DefaultRecordsKey names the envelope array when records_key is unset.
const DefaultRecordsKey = "records"

// ErrNoColumns is returned for empty input when options.columns is not set.
var ErrNoColumns = errors.New("json: no columns (empty input and options.columns empty)")

const logEveryN = 50_000

// Options configures the reader.
type Options struct {
	// Columns fixes the schema. When empty the sorted keys of the first
	// object are used.
	Columns []string
	// HeaderMap renames object keys (original -> field name).
	HeaderMap map[string]string
	// RecordsKey names the envelope array. When empty DefaultRecordsKey is
	// used. Other keys holding arrays are record fields, never envelopes.
	RecordsKey string
}

// FromConfig reads Options from parser.options: columns ([]string),
// header_map (object), records_key (string).
func FromConfig(o config.Options) Options {
	return Options{
		Columns:    o.StringSlice("columns"),
		HeaderMap:  o.StringMap("header_map"),
		RecordsKey: o.String("records_key", DefaultRecordsKey),
	}
}

// Reader streams records from one JSON input.
type Reader struct {
	src     io.ReadCloser
	dec     *json.Decoder
	opt     Options
	pending []any // records decoded with the root value
	schema  schema.Schema
}

// NewReader decodes the root value so the schema is known up front. The
// reader owns src.
func NewReader(src io.ReadCloser, opt Options) (*Reader, error) {
	dec := json.NewDecoder(src)
	dec.UseNumber()
	r := &Reader{src: src, dec: dec, opt: opt}

	var root any
	err := dec.Decode(&root)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		_ = src.Close()
		return nil, fmt.Errorf("json: decode root: %w", err)
	default:
		switch v := root.(type) {
		case []any:
			r.pending = v
		case map[string]any:
			if slice := r.envelope(v); slice != nil {
				r.pending = slice
			} else {
				r.pending = []any{v}
			}
		default:
			_ = src.Close()
			return nil, fmt.Errorf("json: unsupported root type %T (want object or array)", v)
		}
	}

	names := opt.Columns
	if len(names) == 0 {
		first := r.firstObject()
		if first == nil {
			_ = src.Close()
			return nil, ErrNoColumns
		}
		names = r.keysOf(first)
	}
	r.schema = schema.FromNames(names...)
	if err := r.schema.Validate(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("json: %w", err)
	}
	return r, nil
}

// Schema returns the field layout of emitted records.
func (r *Reader) Schema() schema.Schema { return r.schema }

// Stream sends the decoded records to out, then any further top-level
// objects (NDJSON). Array elements that are not objects are reported
// through onErr and skipped; a decode error in the trailing stream is fatal
// because the decoder cannot resynchronize.
func (r *Reader) Stream(ctx context.Context, out chan<- records.Record, onErr func(line int, err error)) error {
	defer r.src.Close()

	n := 0
	emit := func(v any) error {
		n++
		obj, ok := v.(map[string]any)
		if !ok {
			if onErr != nil {
				onErr(n, fmt.Errorf("json: record is not an object (got %T)", v))
			}
			return nil
		}
		select {
		case out <- records.New(n, r.values(obj)...):
			if n%logEveryN == 0 {
				log.Printf("reader: record=%d", n)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, v := range r.pending {
		if err := emit(v); err != nil {
			return err
		}
	}
	r.pending = nil

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var v any
		if err := r.dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("json: decode record %d: %w", n+1, err)
		}
		if err := emit(v); err != nil {
			return err
		}
	}
}

// envelope returns the records array of an envelope object, or nil when
// root is a plain record.
func (r *Reader) envelope(root map[string]any) []any {
	key := r.opt.RecordsKey
	if key == "" {
		key = DefaultRecordsKey
	}
	s, ok := root[key].([]any)
	if !ok || !allObjects(s) {
		return nil
	}
	return s
}

func allObjects(s []any) bool {
	for _, e := range s {
		if _, ok := e.(map[string]any); !ok && e != nil {
			return false
		}
	}
	return true
}

func (r *Reader) firstObject() map[string]any {
	for _, v := range r.pending {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// keysOf returns the mapped field names of obj in sorted order.
func (r *Reader) keysOf(obj map[string]any) []string {
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, r.fieldName(k))
	}
	sort.Strings(names)
	return names
}

func (r *Reader) fieldName(key string) string {
	if m, ok := r.opt.HeaderMap[key]; ok && m != "" {
		return m
	}
	return key
}

// values aligns obj to the schema. Keys outside the schema are dropped.
func (r *Reader) values(obj map[string]any) []any {
	canon := obj
	if len(r.opt.HeaderMap) > 0 {
		canon = make(map[string]any, len(obj))
		for k, v := range obj {
			canon[r.fieldName(k)] = v
		}
	}
	vals := make([]any, r.schema.Len())
	for i, f := range r.schema.Fields {
		vals[i] = scalar(canon[f.Name])
	}
	return vals
}

// scalar renders a decoded JSON value as text.
func scalar(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
