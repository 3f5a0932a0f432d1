package transcript

import (
	"strings"
	"unicode/utf8"
)

// maxToolResultChars truncates tool output in formatted transcripts.
const maxToolResultChars = 2000

// Format renders entries as a plain transcript for an extraction prompt.
func Format(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		switch e.Role {
		case RoleSummary:
			writeLine(&sb, "SUMMARY", e.Text)
		case RoleUser:
			for _, r := range e.ToolResults {
				writeLine(&sb, "TOOL_RESULT", truncate(r, maxToolResultChars))
			}
			writeLine(&sb, "USER", e.Text)
		case RoleAssistant:
			writeLine(&sb, "THINKING", e.Thinking)
			if len(e.ToolCalls) > 0 {
				calls := make([]string, 0, len(e.ToolCalls))
				for _, c := range e.ToolCalls {
					if c.Summary != "" {
						calls = append(calls, c.Name+"("+c.Summary+")")
					} else {
						calls = append(calls, c.Name)
					}
				}
				writeLine(&sb, "TOOL_USE", strings.Join(calls, " "))
			}
			writeLine(&sb, "ASSISTANT", e.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func writeLine(sb *strings.Builder, label, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(text)
	sb.WriteString("\n\n")
}

// truncate cuts s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "...[truncated]"
}
