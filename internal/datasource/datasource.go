// Package datasource opens the raw byte stream a pipeline reads from.
package datasource

import (
	"context"
	"fmt"
	"io"
	"time"

	"emailextract/internal/config"
	"emailextract/internal/datasource/file"
	"emailextract/internal/datasource/httpds"
)

// Source yields the raw input of one run.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// New builds the Source described by cfg.
func New(cfg config.Source) (Source, error) {
	switch cfg.Kind {
	case "file":
		return file.NewLocal(cfg.File.Path), nil
	case "http":
		h := cfg.HTTP
		client := httpds.NewClient(httpds.Config{
			Timeout:            time.Duration(h.TimeoutSeconds) * time.Second,
			MaxRetries:         h.MaxRetries,
			InsecureSkipVerify: h.InsecureSkipVerify,
		})
		return httpds.NewSource(client, h.URL, h.Headers), nil
	default:
		return nil, fmt.Errorf("datasource: unsupported kind %q", cfg.Kind)
	}
}
