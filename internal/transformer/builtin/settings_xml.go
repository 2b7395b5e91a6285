package builtin

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Tag names of the legacy step fragment.
const (
	xmlInField    = "inField"
	xmlOutField   = "outField"
	xmlCheckValid = "checkValid"
)

// MarshalEmailExtractXML renders s as the legacy tag/value fragment:
//
//	<inField>notes</inField><outField>email</outField><checkValid>Y</checkValid>
func MarshalEmailExtractXML(s EmailExtractSettings) string {
	var b strings.Builder
	writeTag(&b, xmlInField, s.InputField)
	writeTag(&b, xmlOutField, s.OutputField)
	flag := "N"
	if s.ValidateEmails {
		flag = "Y"
	}
	writeTag(&b, xmlCheckValid, flag)
	return b.String()
}

func writeTag(b *strings.Builder, tag, val string) {
	b.WriteString("<" + tag + ">")
	_ = xml.EscapeText(b, []byte(val))
	b.WriteString("</" + tag + ">")
}

// ParseEmailExtractXML reads settings from a legacy step fragment. The tags
// may appear at any depth and in any order; unknown tags are ignored. A
// missing tag leaves the field at its zero value, and checkValid is true only
// for exactly "Y".
func ParseEmailExtractXML(fragment string) (EmailExtractSettings, error) {
	var s EmailExtractSettings

	// A bare fragment has several roots; wrap it so the decoder sees one.
	dec := xml.NewDecoder(strings.NewReader("<step>" + fragment + "</step>"))
	var (
		current string
		text    bytes.Buffer
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, fmt.Errorf("email_extract xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			text.Reset()
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local != current {
				continue
			}
			val := text.String()
			switch current {
			case xmlInField:
				s.InputField = val
			case xmlOutField:
				s.OutputField = val
			case xmlCheckValid:
				s.ValidateEmails = val == "Y"
			}
			current = ""
		}
	}
	return s, nil
}
