package builtin

import (
	"fmt"

	"emailextract/internal/config"
	"emailextract/internal/email"
	"emailextract/internal/transformer"
)

// Build turns the configured transform list into a fresh Chain. Every call
// returns new step instances, so each concurrent worker gets its own.
func Build(ts []config.Transform, v email.Validator) (transformer.Chain, error) {
	chain := make(transformer.Chain, 0, len(ts))
	for i, t := range ts {
		switch t.Kind {
		case KindNormalize:
			chain = append(chain, Normalize{})
		case KindStripHTML:
			chain = append(chain, NewStripHTML(t.Options))
		case KindEmailExtract:
			settings := EmailExtractSettingsFromOptions(t.Options)
			if frag := t.Options.String("xml", ""); frag != "" {
				var err error
				if settings, err = ParseEmailExtractXML(frag); err != nil {
					return nil, fmt.Errorf("transform[%d]: %w", i, err)
				}
			}
			chain = append(chain, NewEmailExtract(settings, v))
		default:
			return nil, fmt.Errorf("transform[%d]: unknown kind %q", i, t.Kind)
		}
	}
	return chain, nil
}

// EmailExtractSteps returns the EmailExtract steps of chain, in order.
func EmailExtractSteps(chain transformer.Chain) []*EmailExtract {
	var out []*EmailExtract
	for _, s := range chain {
		if e, ok := s.(*EmailExtract); ok {
			out = append(out, e)
		}
	}
	return out
}
