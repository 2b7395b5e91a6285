package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced to users but does
	// not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "transform[1].options.input_field"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline; callers decide whether warnings are fatal.
//
// Example:
//
//	p, err := config.Load("pipeline.yaml")
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateTransforms(p.Transform)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path (use \"-\" for stdin)",
			})
		}
	case "http":
		u := strings.TrimSpace(s.HTTP.URL)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http.url",
				Message:  fmt.Sprintf("http source requires an http(s) url, got %q", s.HTTP.URL),
			})
		}
		if s.HTTP.MaxRetries < 0 || s.HTTP.TimeoutSeconds < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.http",
				Message:  "max_retries and timeout_seconds must not be negative",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q", s.Kind),
		})
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  "parser.kind must not be empty",
		})
	}

	switch p.Kind {
	case "csv":
		if !p.Options.Bool("has_header", true) && len(p.Options.StringSlice("columns")) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "parser.options.columns",
				Message:  "csv parser without a header row needs options.columns to name the fields",
			})
		}
		if c := p.Options.String("comma", ","); len([]rune(c)) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "parser.options.comma",
				Message:  fmt.Sprintf("comma must be a single character, got %q", c),
			})
		}
	case "json":
		if len(p.Options.StringSlice("columns")) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "parser.options.columns",
				Message:  "json parser has no columns; they will be taken from the first object's keys",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q", p.Kind),
		})
	}

	return issues
}

func validateTransforms(ts []Transform) []Issue {
	var issues []Issue

	if len(ts) == 0 {
		return append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "transform",
			Message:  "no transforms configured; parsed records will be written as-is",
		})
	}

	for i, t := range ts {
		path := fmt.Sprintf("transform[%d]", i)
		switch strings.TrimSpace(t.Kind) {
		case "":
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".kind",
				Message:  "transform kind must not be empty",
			})
		case "normalize", "strip_html":
		case "email_extract":
			issues = append(issues, validateEmailExtract(path+".options", t.Options)...)
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".kind",
				Message:  fmt.Sprintf("unknown transform kind %q", t.Kind),
			})
		}
	}

	return issues
}

// validateEmailExtract mirrors the step's own setup diagnostics: unresolved
// fields do not fail a run, they degrade it to pass-through, so they are
// warnings here.
func validateEmailExtract(path string, o Options) []Issue {
	var issues []Issue
	if o.String("xml", "") != "" {
		// Legacy fragment; its fields are resolved when the step is built.
		return issues
	}
	if strings.TrimSpace(o.String("input_field", "")) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".input_field",
			Message:  "input_field is empty; no addresses will be extracted",
		})
	}
	if strings.TrimSpace(o.String("output_field", "")) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".output_field",
			Message:  "output_field is empty; every record will pass through unchanged",
		})
	}
	if v, ok := o["validate_emails"]; ok {
		switch b := v.(type) {
		case bool:
		case string:
			if u := strings.ToUpper(strings.TrimSpace(b)); u != "Y" && u != "N" && u != "TRUE" && u != "FALSE" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".validate_emails",
					Message:  fmt.Sprintf("validate_emails must be a bool or Y/N, got %q", b),
				})
			}
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".validate_emails",
				Message:  fmt.Sprintf("validate_emails must be a bool or Y/N, got %T", v),
			})
		}
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}

	switch s.Kind {
	case "csv":
		if len([]rune(s.CSV.Comma)) > 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.csv.comma",
				Message:  fmt.Sprintf("comma must be a single character, got %q", s.CSV.Comma),
			})
		}
		return issues
	case "postgres", "mysql", "mssql", "sqlite", "mongo":
	default:
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	db := s.DB
	if strings.TrimSpace(db.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(db.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.table",
			Message:  "storage.db.table must not be empty",
		})
	}
	if s.Kind == "mongo" && strings.TrimSpace(db.Database) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.database",
			Message:  "mongo storage requires storage.db.database",
		})
	}
	if len(db.Columns) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.db.columns",
			Message:  "storage.db.columns is empty; the transform output schema will be used",
		})
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if r.TransformWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.transform_workers",
			Message:  "transform_workers must not be negative",
		})
	}
	if r.TransformWorkers > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.transform_workers",
			Message:  fmt.Sprintf("transform_workers=%d; output order across records is only preserved with one worker", r.TransformWorkers),
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}
	if r.MaxErrors < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_errors",
			Message:  "max_errors must not be negative",
		})
	}

	return issues
}
