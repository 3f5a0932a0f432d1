// Package protocol parses the textual markers that generation calls are asked
// to emit. Parsing is lenient about markdown decoration and conservative on
// failure: anything it cannot read counts as "nothing found".
package protocol

import (
	"strings"

	"github.com/hpungsan/wm/internal/errors"
)

// Markers used by the prompts in this module.
const (
	MarkerHasKnowledge  = "HAS_KNOWLEDGE"
	MarkerHasRelevant   = "HAS_RELEVANT"
	MarkerWasCompressed = "WAS_COMPRESSED"
)

// markdownPrefix is stripped from the left of every line before matching.
const markdownPrefix = "#>* \t"

// valueDecoration is stripped around the value token ("**YES**", "`no`.").
const valueDecoration = "*_`.,;:!\"' \t"

// Decision is the parsed result of a marker response.
type Decision struct {
	Found    bool   `json:"found"`
	Positive bool   `json:"positive"`
	Payload  string `json:"payload,omitempty"`
}

// Parse scans text for the first line of the form "<marker>: <value>".
//
// A missing marker yields a negative Decision with an empty payload and no error.
// A value other than yes/true/no/false yields a negative Decision together with an
// AMBIGUOUS_VALUE error; callers treat that as "nothing found" and may log it.
func Parse(text, marker string) (Decision, error) {
	prefix := strings.ToUpper(marker) + ":"
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i, line := range lines {
		stripped := strings.TrimLeft(line, markdownPrefix)
		if !strings.HasPrefix(strings.ToUpper(stripped), prefix) {
			continue
		}

		d := Decision{Found: true, Payload: payloadAfter(lines[i+1:])}
		value := markerValue(stripped[len(prefix):])
		switch strings.ToUpper(value) {
		case "YES", "TRUE":
			d.Positive = true
			return d, nil
		case "NO", "FALSE":
			return d, nil
		default:
			return d, errors.NewAmbiguousValue(marker, value)
		}
	}

	return Decision{}, nil
}

// markerValue extracts the first token after the colon, without decoration.
func markerValue(rest string) string {
	rest = strings.TrimLeft(rest, valueDecoration)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], valueDecoration)
}

// payloadAfter joins lines, dropping leading and trailing blank lines.
func payloadAfter(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return ""
	}
	out := lines[start:end]
	out[len(out)-1] = strings.TrimRight(out[len(out)-1], " \t")
	return strings.Join(out, "\n")
}
