package transcript

import (
	"context"
	"encoding/json"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/wm/internal/errors"
)

// SourceCodex tags sessions read from Codex rollout logs.
const SourceCodex = "codex"

// CodexStore reads <SessionsDir>/YYYY/MM/DD/rollout-*.jsonl. Codex does not
// group logs by project, so discovery reads each file's session_meta line and
// keeps those whose cwd is the project path.
type CodexStore struct {
	SessionsDir string
	now         func() time.Time
}

// NewCodexStore returns a store rooted at sessionsDir (usually ~/.codex/sessions).
func NewCodexStore(sessionsDir string) *CodexStore {
	return &CodexStore{SessionsDir: sessionsDir, now: time.Now}
}

type codexLine struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Cwd       string          `json:"cwd"`
	Message   string          `json:"message"`
	Text      string          `json:"text"`
	Name      string          `json:"name"`
	Arguments string          `json:"arguments"`
	Output    json.RawMessage `json:"output"`
}

// Discover implements Store.
func (c *CodexStore) Discover(ctx context.Context, projectPath string) ([]Session, error) {
	want := filepath.Clean(projectPath)
	return c.walk(ctx, func(cwd string) bool { return filepath.Clean(cwd) == want })
}

// walk lists the sessions whose recorded cwd satisfies match, newest first.
// ProjectPath is set to that cwd.
func (c *CodexStore) walk(ctx context.Context, match func(cwd string) bool) ([]Session, error) {
	if !dirExists(c.SessionsDir) {
		return nil, nil
	}

	var sessions []Session
	err := filepath.WalkDir(c.SessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep the rest
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() || !strings.HasPrefix(name, "rollout-") || !strings.HasSuffix(name, ".jsonl") {
			return nil
		}

		id, cwd := readCodexMeta(path)
		if cwd == "" || !match(cwd) {
			return nil
		}
		if id == "" {
			id = strings.TrimSuffix(strings.TrimPrefix(name, "rollout-"), ".jsonl")
		}
		s := Session{
			ID:           id,
			ProjectPath:  cwd,
			Path:         path,
			Source:       SourceCodex,
			DiscoveredAt: c.now(),
		}
		if err := statSession(&s); err != nil {
			return nil
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.NewIO("walk codex sessions", err)
	}

	sortNewestFirst(sessions)
	return sessions, nil
}

// readCodexMeta returns the id and cwd from the first session_meta line.
func readCodexMeta(path string) (id, cwd string) {
	for line, err := range scanLines(path) {
		if err != nil {
			return "", ""
		}
		var raw codexLine
		if json.Unmarshal(line.Data, &raw) != nil {
			continue
		}
		if raw.Type != "session_meta" {
			// session_meta is written first; anything else means an old format
			return "", ""
		}
		var p codexPayload
		if json.Unmarshal(raw.Payload, &p) != nil {
			return "", ""
		}
		return p.ID, p.Cwd
	}
	return "", ""
}

// Entries implements Store.
func (c *CodexStore) Entries(s Session) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for line, err := range scanLines(s.Path) {
			if err != nil {
				if !yield(Entry{}, err) || !errors.Is(err, errors.ErrParse) {
					return
				}
				continue
			}
			entry, ok, err := parseCodexLine(line.Data)
			if err != nil {
				if !yield(Entry{}, lineError(s.Path, line.No, err)) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			entry.Line = line.No
			entry.SessionID = s.ID
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func parseCodexLine(data []byte) (Entry, bool, error) {
	var raw codexLine
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, false, err
	}
	if raw.Type != "event_msg" && raw.Type != "response_item" {
		return Entry{}, false, nil
	}
	var p codexPayload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return Entry{}, false, err
	}

	entry := Entry{Timestamp: parseTimestamp(raw.Timestamp)}
	switch {
	case raw.Type == "event_msg" && p.Type == "user_message":
		entry.Role = RoleUser
		entry.Text = stripBlocks(p.Message, "<environment_context>", "</environment_context>")
	case raw.Type == "event_msg" && p.Type == "agent_message":
		entry.Role = RoleAssistant
		entry.Text = p.Message
	case raw.Type == "event_msg" && p.Type == "agent_reasoning":
		entry.Role = RoleAssistant
		entry.Thinking = p.Text
	case raw.Type == "response_item" && p.Type == "function_call":
		entry.Role = RoleAssistant
		entry.ToolCalls = []ToolCall{{Name: p.Name, Summary: codexToolSummary(p.Name, p.Arguments)}}
	case raw.Type == "response_item" && p.Type == "function_call_output":
		entry.Role = RoleUser
		if out := decodeText(p.Output); out != "" {
			entry.ToolResults = []string{out}
		}
	default:
		return Entry{}, false, nil
	}

	if entry.IsEmpty() {
		return Entry{}, false, nil
	}
	entry.SystemReminder = isSystemReminder(entry.Text)
	return entry, true, nil
}

func codexToolSummary(name, arguments string) string {
	var args map[string]any
	if json.Unmarshal([]byte(arguments), &args) != nil {
		return ""
	}
	switch name {
	case "shell":
		switch cmd := args["command"].(type) {
		case string:
			return cmd
		case []any:
			if len(cmd) > 0 {
				s, _ := cmd[len(cmd)-1].(string)
				return s
			}
		}
	case "read_file", "write_file":
		s, _ := args["path"].(string)
		return s
	case "edit_file":
		s, _ := args["target_file"].(string)
		return s
	}
	return ""
}
