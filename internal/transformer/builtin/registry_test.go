package builtin

import (
	"testing"

	"emailextract/internal/config"
)

func TestBuild_KindsAndFreshInstances(t *testing.T) {
	t.Parallel()

	ts := []config.Transform{
		{Kind: KindNormalize},
		{Kind: KindEmailExtract, Options: config.Options{"input_field": "notes", "output_field": "email", "validate_emails": true}},
	}

	a, err := Build(ts, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(ts, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(a) != 2 {
		t.Fatalf("chain length = %d, want 2", len(a))
	}
	if _, ok := a[0].(Normalize); !ok {
		t.Fatalf("a[0] = %T, want Normalize", a[0])
	}

	ea, eb := EmailExtractSteps(a), EmailExtractSteps(b)
	if len(ea) != 1 || len(eb) != 1 {
		t.Fatalf("email steps = %d/%d, want 1/1", len(ea), len(eb))
	}
	if ea[0] == eb[0] {
		t.Fatalf("Build returned a shared step instance")
	}
	want := EmailExtractSettings{InputField: "notes", OutputField: "email", ValidateEmails: true}
	if ea[0].Settings() != want {
		t.Fatalf("settings = %+v, want %+v", ea[0].Settings(), want)
	}
}

func TestBuild_StripHTML(t *testing.T) {
	t.Parallel()

	c, err := Build([]config.Transform{{Kind: KindStripHTML, Options: config.Options{"fields": []any{"body"}}}}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, ok := c[0].(*StripHTML)
	if !ok {
		t.Fatalf("c[0] = %T, want *StripHTML", c[0])
	}
	if len(s.Fields) != 1 || s.Fields[0] != "body" {
		t.Fatalf("fields = %v, want [body]", s.Fields)
	}
}

func TestBuild_LegacyXML(t *testing.T) {
	t.Parallel()

	ts := []config.Transform{{Kind: KindEmailExtract, Options: config.Options{
		"xml": "<inField>body</inField><outField>addr</outField><checkValid>N</checkValid>",
	}}}
	c, err := Build(ts, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := EmailExtractSteps(c)[0].Settings()
	if want := (EmailExtractSettings{InputField: "body", OutputField: "addr"}); got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Build([]config.Transform{{Kind: "dedup"}}, nil); err == nil {
		t.Fatalf("Build(unknown kind) error = nil")
	}
	bad := []config.Transform{{Kind: KindEmailExtract, Options: config.Options{"xml": "<inField>"}}}
	if _, err := Build(bad, nil); err == nil {
		t.Fatalf("Build(bad xml) error = nil")
	}
}
