// Package parser turns a raw source stream into schema-aligned records.
package parser

import (
	"context"
	"fmt"
	"io"

	"emailextract/internal/config"
	csvparser "emailextract/internal/parser/csv"
	jsonparser "emailextract/internal/parser/json"
	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// Reader is implemented by every parser. Schema is known as soon as the
// reader is constructed; Stream owns the source and closes it on return.
type Reader interface {
	Schema() schema.Schema
	Stream(ctx context.Context, out chan<- records.Record, onErr func(line int, err error)) error
}

// New builds the reader selected by cfg.Kind over src.
func New(cfg config.Parser, src io.ReadCloser) (Reader, error) {
	switch cfg.Kind {
	case "csv":
		r, err := csvparser.NewReader(src, csvparser.FromConfig(cfg.Options))
		if err != nil {
			return nil, err
		}
		return r, nil
	case "json":
		r, err := jsonparser.NewReader(src, jsonparser.FromConfig(cfg.Options))
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		_ = src.Close()
		return nil, fmt.Errorf("parser: unsupported kind %q", cfg.Kind)
	}
}
