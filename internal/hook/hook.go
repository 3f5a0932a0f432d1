// Package hook speaks the host's hook protocol: a JSON payload on stdin and
// a JSON response on stdout. A hook must never block the host, so every
// failure collapses into the empty response.
package hook

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/hpungsan/wm/internal/errors"
)

// EventUserPromptSubmit is the only event wm answers.
const EventUserPromptSubmit = "UserPromptSubmit"

// maxInput bounds how much of stdin is read.
const maxInput = 4 << 20

// Input is the payload the host sends on stdin. Unknown fields are ignored.
type Input struct {
	SessionID      string `json:"session_id"`
	Cwd            string `json:"cwd"`
	Prompt         string `json:"prompt"`
	TranscriptPath string `json:"transcript_path"`
	HookEventName  string `json:"hook_event_name,omitempty"`
}

// Output is the response written to stdout.
type Output struct {
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries the context to inject.
type SpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// ReadInput decodes the payload. Empty input is an empty Input.
func ReadInput(r io.Reader) (Input, error) {
	var in Input
	data, err := io.ReadAll(io.LimitReader(r, maxInput))
	if err != nil {
		return in, errors.NewIO("read hook input", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return in, nil
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, errors.NewParseError("hook input", err)
	}
	return in, nil
}

// Respond builds the response for context; blank context gives "{}".
func Respond(context string) Output {
	if strings.TrimSpace(context) == "" {
		return Output{}
	}
	return Output{HookSpecificOutput: &SpecificOutput{
		HookEventName:     EventUserPromptSubmit,
		AdditionalContext: context,
	}}
}

// Write encodes out as a single JSON line.
func Write(w io.Writer, out Output) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return errors.NewIO("write hook output", err)
	}
	return nil
}

// WriteEmpty writes "{}".
func WriteEmpty(w io.Writer) error {
	return Write(w, Output{})
}
