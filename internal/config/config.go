// Package config defines the configuration model for emailextract pipelines.
// Pipelines are plain data: they are loaded from a JSON or YAML file and
// passed through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":      "contacts",
//	  "source":   { "kind": "file", "file": { "path": "contacts.csv" } },
//	  "parser":   { "kind": "csv", "options": { "has_header": true } },
//	  "transform":[
//	    { "kind": "email_extract", "options": {
//	        "input_field": "notes", "output_field": "email", "validate_emails": true } }
//	  ],
//	  "storage":  { "kind": "sqlite", "db": { "dsn": "file:out.db", "table": "emails",
//	                "auto_create_table": true } }
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned by Load for files that are neither JSON nor YAML.
var ErrUnknownFormat = errors.New("config: unknown pipeline file format")

// Pipeline describes the full pipeline. It is the top-level object decoded
// from a pipeline file.
type Pipeline struct {
	// Job names the pipeline; it labels metrics and log lines.
	Job string `json:"job" yaml:"job"`

	// Source describes where input data comes from (e.g., local file).
	Source Source `json:"source" yaml:"source"`

	// Parser configures how raw bytes are turned into records (e.g., CSV).
	Parser Parser `json:"parser" yaml:"parser"`

	// Transform lists the ordered steps applied to parsed records. Each
	// transform has a kind and an options bag whose shape is defined by the
	// transform implementation.
	Transform []Transform `json:"transform" yaml:"transform"`

	// Storage describes where transformed records are written.
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// RuntimeConfig controls concurrency, batching, and channel buffer sizes.
type RuntimeConfig struct {
	TransformWorkers int `json:"transform_workers" yaml:"transform_workers"`
	BatchSize        int `json:"batch_size" yaml:"batch_size"`
	ChannelBuffer    int `json:"channel_buffer" yaml:"channel_buffer"`
	// MaxErrors caps how many soft row errors are kept for the summary.
	MaxErrors int `json:"max_errors" yaml:"max_errors"`
}

// Source identifies the data source.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string `json:"kind" yaml:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file" yaml:"file"`

	// HTTP carries options for the "http" source kind.
	HTTP SourceHTTP `json:"http" yaml:"http"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL                string            `json:"url" yaml:"url"`
	Headers            map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds     int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries         int               `json:"max_retries" yaml:"max_retries"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file; "-" reads stdin.
	Path string `json:"path" yaml:"path"`
}

// Parser selects how to parse the raw source into records.
type Parser struct {
	// Kind selects the parser implementation: "csv" or "json".
	Kind string `json:"kind" yaml:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys include:
	//   has_header (bool), comma (string), trim_space (bool),
	//   lazy_quotes (bool), columns ([]string), header_map (object)
	Options Options `json:"options" yaml:"options"`
}

// Transform defines a single step. The sequence of steps forms the chain
// executed by the pipeline.
type Transform struct {
	// Kind selects the transform implementation ("email_extract", "normalize",
	// "strip_html").
	Kind string `json:"kind" yaml:"kind"`

	// Options is a free-form map interpreted by the selected transform.
	Options Options `json:"options" yaml:"options"`
}

// Storage selects the sink used to persist transformed records.
type Storage struct {
	// Kind selects the storage backend: postgres, mssql, mysql, sqlite,
	// mongo or csv.
	Kind string `json:"kind" yaml:"kind"`

	// DB configures the database backends.
	DB DBConfig `json:"db" yaml:"db"`

	// CSV configures the "csv" file sink.
	CSV CSVConfig `json:"csv" yaml:"csv"`
}

// DBConfig configures a database sink.
type DBConfig struct {
	// DSN is the connection string (pgx, mssql, mysql, sqlite) or the mongodb URI.
	DSN string `json:"dsn" yaml:"dsn"`

	// Database is the mongo database name. SQL backends take it from the DSN.
	Database string `json:"database" yaml:"database"`

	// Table is the destination table (or mongo collection).
	Table string `json:"table" yaml:"table"`

	// Columns enumerates the destination columns in the order used for bulk
	// copy. When empty, the output schema of the transform chain is used.
	Columns []string `json:"columns" yaml:"columns"`

	// AutoCreateTable creates the destination table (all text columns) if it
	// does not exist.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// CSVConfig configures the csv file sink.
type CSVConfig struct {
	// Path of the output file; "-" or empty writes to stdout.
	Path string `json:"path" yaml:"path"`
	// Comma is the field delimiter; defaults to ",".
	Comma string `json:"comma" yaml:"comma"`
	// Header writes the column names as the first row.
	Header bool `json:"header" yaml:"header"`
	// Columns works as DBConfig.Columns.
	Columns []string `json:"columns" yaml:"columns"`
}

// Load reads a pipeline file. Files ending in .yaml or .yml are decoded with
// yaml.v3, files ending in .json with encoding/json.
func Load(path string) (Pipeline, error) {
	var p Pipeline
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &p)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &p)
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return p, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return p, nil
}

// Options is a small helper to fetch typed values from arbitrary decoded maps.
// It performs only minimal type coercion and returns the provided default
// when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
// The legacy "Y"/"N" flag spelling is accepted as well.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			switch strings.ToUpper(strings.TrimSpace(b)) {
			case "Y", "TRUE":
				return true
			case "N", "FALSE":
				return false
			}
		}
	}
	return def
}

// Int returns the int value for key or def. encoding/json decodes numbers as
// float64 and yaml.v3 as int, so both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for single-character parser settings such as a CSV
// delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty
// map when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON makes a missing or null "options" object decode to a
// non-nil, empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML is the yaml.v3 counterpart of UnmarshalJSON.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
