package protocol

import (
	"strings"

	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/knowledge"
)

// Section markers in categorization output.
const (
	SectionGuardrails = "GUARDRAILS"
	SectionMetis      = "METIS"
)

// Categorized holds the two classes split out by a categorization call.
type Categorized struct {
	Guardrails []string `json:"guardrails"`
	Metis      []string `json:"metis"`
}

// emptyItems are values a model writes to mean "no items in this section".
var emptyItems = map[string]bool{
	"none": true, "(none)": true, "n/a": true, "(n/a)": true, "-": true, "nothing": true,
}

// ParseCategorization splits text on GUARDRAILS:/METIS: marker lines and
// extracts the list items under each. Marker lines follow the same leniency as
// Parse (markdown prefix, any case; a trailing colon is optional when the
// marker stands alone as a heading).
//
// Returns PARSE_ERROR when neither marker is present, so callers never replace
// curated files with the result of an unreadable response.
func ParseCategorization(text string) (Categorized, error) {
	var guardrails, metis strings.Builder
	var current *strings.Builder
	found := false

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if section, rest, ok := sectionMarker(line); ok {
			found = true
			if section == SectionGuardrails {
				current = &guardrails
			} else {
				current = &metis
			}
			if rest != "" {
				current.WriteString(rest + "\n")
			}
			continue
		}
		if current != nil {
			current.WriteString(line + "\n")
		}
	}

	if !found {
		return Categorized{}, errors.NewParseError("categorization output", nil)
	}

	return Categorized{
		Guardrails: cleanItems(knowledge.ListItems(guardrails.String())),
		Metis:      cleanItems(knowledge.ListItems(metis.String())),
	}, nil
}

// sectionMarker reports whether line opens a section, returning any text that
// follows the marker on the same line.
func sectionMarker(line string) (section, rest string, ok bool) {
	stripped := strings.TrimRight(strings.TrimLeft(line, markdownPrefix), " \t")
	upper := strings.ToUpper(stripped)
	for _, name := range []string{SectionGuardrails, SectionMetis} {
		if strings.HasPrefix(upper, name+":") {
			rest = strings.TrimSpace(strings.TrimLeft(stripped[len(name)+1:], "*_ \t"))
			return name, rest, true
		}
		if strings.TrimRight(upper, "*_") == name {
			return name, "", true
		}
	}
	return "", "", false
}

func cleanItems(items []string) []string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if emptyItems[strings.ToLower(strings.TrimSpace(item))] {
			continue
		}
		kept = append(kept, item)
	}
	return knowledge.Dedup(kept)
}
