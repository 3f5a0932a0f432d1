package transcript

import (
	"strings"
	"time"
)

const (
	reminderOpen  = "<system-reminder>"
	reminderClose = "</system-reminder>"
)

// Window bounds the entries a pass looks at. A zero From means "from the start".
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// WindowFor widens the window below lastProcessed by carryover so content
// split across a run boundary is seen again instead of lost.
func WindowFor(lastProcessed time.Time, carryover time.Duration, now time.Time) Window {
	w := Window{To: now}
	if !lastProcessed.IsZero() {
		w.From = lastProcessed.Add(-carryover)
	}
	return w
}

// Contains reports whether t falls inside the window. Entries without a
// timestamp (summaries) are always inside.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// Filter keeps entries inside w that belong to sessionID (when non-empty),
// drops whole system-reminder entries, and strips inline reminder blocks
// from the rest. Input order is preserved.
func Filter(entries []Entry, w Window, sessionID string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if sessionID != "" && e.SessionID != "" && e.SessionID != sessionID {
			continue
		}
		if !w.Contains(e.Timestamp) {
			continue
		}
		if e.SystemReminder && len(e.ToolCalls) == 0 && len(e.ToolResults) == 0 {
			continue
		}
		e.Text = stripBlocks(e.Text, reminderOpen, reminderClose)
		if e.IsEmpty() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// isSystemReminder reports whether text is nothing but reminder blocks.
func isSystemReminder(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, reminderOpen) {
		return false
	}
	return stripBlocks(trimmed, reminderOpen, reminderClose) == ""
}

// stripBlocks removes every open...close span. An unclosed block runs to the end.
func stripBlocks(text, open, close string) string {
	if !strings.Contains(text, open) {
		return strings.TrimSpace(text)
	}
	var sb strings.Builder
	rest := text
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:i])
		after := rest[i+len(open):]
		j := strings.Index(after, close)
		if j < 0 {
			break
		}
		rest = after[j+len(close):]
	}
	return strings.TrimSpace(sb.String())
}
