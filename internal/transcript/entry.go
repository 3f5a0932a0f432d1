// Package transcript discovers and reads assistant session logs and slices
// them into the window a distillation pass should look at.
package transcript

import (
	"context"
	"iter"
	"time"

	"github.com/hpungsan/wm/internal/errors"
)

// Role tags a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSummary   Role = "summary"
)

// ToolCall is one tool invocation by the assistant, reduced to its key argument.
type ToolCall struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

// Entry is one logged event. Entries are immutable once read and arrive in
// the log's append order.
type Entry struct {
	SessionID   string     `json:"session_id"`
	Role        Role       `json:"role"`
	Timestamp   time.Time  `json:"timestamp"`
	Text        string     `json:"text,omitempty"`
	Thinking    string     `json:"thinking,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	ToolResults []string   `json:"tool_results,omitempty"`

	// SystemReminder is set when the whole text is a system-reminder block.
	SystemReminder bool `json:"system_reminder,omitempty"`

	// Line is the 1-based line number in the source file.
	Line int `json:"line"`
}

// IsEmpty reports whether the entry carries nothing worth extracting.
func (e Entry) IsEmpty() bool {
	return e.Text == "" && e.Thinking == "" && len(e.ToolCalls) == 0 && len(e.ToolResults) == 0
}

// Session identifies one transcript file.
type Session struct {
	ID           string    `json:"id"`
	ProjectPath  string    `json:"project_path"`
	Path         string    `json:"path"`
	Source       string    `json:"source"`
	ModTime      time.Time `json:"mod_time"`
	SizeBytes    int64     `json:"size_bytes"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Store enumerates and reads transcripts.
type Store interface {
	// Discover lists sessions for a project, newest first, reading metadata only.
	Discover(ctx context.Context, projectPath string) ([]Session, error)

	// Entries returns a restartable sequence over a session's entries. A
	// malformed line is yielded as a PARSE_ERROR and iteration continues; a
	// missing file is yielded as NOT_FOUND and iteration stops.
	Entries(s Session) iter.Seq2[Entry, error]
}

// ReadResult is a fully drained entry sequence.
type ReadResult struct {
	Entries  []Entry
	Warnings []string
}

// ReadAll drains seq. Parse errors become warnings; any other error aborts.
func ReadAll(seq iter.Seq2[Entry, error]) (*ReadResult, error) {
	res := &ReadResult{}
	for entry, err := range seq {
		if err != nil {
			if errors.Is(err, errors.ErrParse) {
				res.Warnings = append(res.Warnings, err.Error())
				continue
			}
			return nil, err
		}
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}
