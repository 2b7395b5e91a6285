// Package builtin contains the transform steps shipped with the pipeline.
//
// EmailExtract scans one text field per record for email-like substrings
// and fans the record out: one output per surviving address, each a copy of
// the input with the output field set to that address. When nothing
// survives, the input passes through unchanged with the output field left
// nil.
package builtin

import (
	"errors"
	"fmt"
	"log"

	"emailextract/internal/config"
	"emailextract/internal/email"
	"emailextract/internal/schema"
	"emailextract/internal/transformer"
	"emailextract/pkg/records"
)

// KindEmailExtract is the transform kind used in pipeline files.
const KindEmailExtract = "email_extract"

var errSetupTwice = errors.New("email_extract: setup already done for this run")

// EmailExtractSettings is the step configuration. It is copied into the step
// at construction and never changes for the lifetime of a run.
type EmailExtractSettings struct {
	// InputField names the text field to scan.
	InputField string `json:"input_field" yaml:"input_field"`
	// OutputField names the field that receives an extracted address. It is
	// appended to the output schema when the upstream schema lacks it.
	OutputField string `json:"output_field" yaml:"output_field"`
	// ValidateEmails filters candidates through the Validator.
	ValidateEmails bool `json:"validate_emails" yaml:"validate_emails"`
}

// EmailExtractSettingsFromOptions reads the settings from a transform's
// options bag.
func EmailExtractSettingsFromOptions(opt config.Options) EmailExtractSettings {
	return EmailExtractSettings{
		InputField:     opt.String("input_field", ""),
		OutputField:    opt.String("output_field", ""),
		ValidateEmails: opt.Bool("validate_emails", false),
	}
}

// EmailExtractStats counts what one step instance has done. A step instance
// is driven by a single goroutine, so the counters are plain integers; read
// them after the instance's loop has returned.
type EmailExtractStats struct {
	In                 int64 // records received
	Emitted            int64 // records emitted (pass-through + fan-out)
	PassThrough        int64 // records emitted unchanged
	FanOut             int64 // records emitted with an address set
	Candidates         int64 // candidates found by the extractor
	RejectedCandidates int64 // candidates dropped by the validator
}

// EmailExtract is the fan-out step. Create one per run (and per concurrent
// worker); Setup caches resolved field positions on the instance.
type EmailExtract struct {
	settings  EmailExtractSettings
	validator email.Validator

	// Logf receives setup diagnostics. Defaults to log.Printf.
	Logf func(format string, args ...any)

	ready  bool
	inPos  int
	inOK   bool
	outPos int
	outOK  bool
	width  int

	stats EmailExtractStats
}

var _ transformer.Step = (*EmailExtract)(nil)

// NewEmailExtract returns a step for s. A nil v uses email.DefaultValidator.
func NewEmailExtract(s EmailExtractSettings, v email.Validator) *EmailExtract {
	if v == nil {
		v = email.DefaultValidator
	}
	return &EmailExtract{
		settings:  s,
		validator: v,
		Logf:      log.Printf,
		inPos:     -1,
		outPos:    -1,
	}
}

// Settings returns the step configuration.
func (e *EmailExtract) Settings() EmailExtractSettings { return e.settings }

// Stats returns a snapshot of the counters.
func (e *EmailExtract) Stats() EmailExtractStats { return e.stats }

// OutputSchema appends the output field (as text) unless the input already
// carries a field of that name.
func (e *EmailExtract) OutputSchema(in schema.Schema) schema.Schema {
	return in.With(schema.Field{Name: e.settings.OutputField, Type: "text"})
}

// Setup resolves the input field against in and the output field against the
// derived output schema, once. Unresolvable names are not fatal: they are
// logged and the step degrades to pass-through for the affected side.
func (e *EmailExtract) Setup(in schema.Schema) error {
	if e.ready {
		return errSetupTwice
	}
	out := e.OutputSchema(in)
	e.width = out.Len()

	e.inPos, e.inOK = schema.Resolve(in, e.settings.InputField)
	if !e.inOK {
		e.logf("email_extract: input field %q not found in schema; extraction disabled", e.settings.InputField)
	}
	e.outPos, e.outOK = schema.Resolve(out, e.settings.OutputField)
	if !e.outOK {
		e.logf("email_extract: output field %q not found in schema; records pass through unchanged", e.settings.OutputField)
	}
	e.ready = true
	return nil
}

// Process extracts, optionally validates and expands one record.
func (e *EmailExtract) Process(rec records.Record, emit transformer.Emit) error {
	if !e.ready {
		return fmt.Errorf("email_extract: Process called before Setup")
	}
	e.stats.In++
	rec = rec.Resize(e.width)

	var candidates []string
	if e.inOK && e.outOK {
		candidates = email.ExtractValue(rec.Get(e.inPos))
	}
	e.stats.Candidates += int64(len(candidates))

	addrs := e.expandable(candidates)
	if len(addrs) == 0 {
		e.stats.PassThrough++
		e.stats.Emitted++
		return emit(rec)
	}

	for _, a := range addrs {
		if err := emit(rec.With(e.outPos, a)); err != nil {
			return err
		}
		e.stats.FanOut++
		e.stats.Emitted++
	}
	return nil
}

// expandable returns the addresses to fan out: the raw candidates, or the
// trimmed survivors of the validator when validation is on.
func (e *EmailExtract) expandable(candidates []string) []string {
	if len(candidates) == 0 || !e.settings.ValidateEmails {
		return candidates
	}
	kept := email.Filter(candidates, e.validator)
	e.stats.RejectedCandidates += int64(len(candidates) - len(kept))
	return kept
}

func (e *EmailExtract) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}
