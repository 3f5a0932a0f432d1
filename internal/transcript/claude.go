package transcript

import (
	"context"
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/wm/internal/errors"
)

// SourceClaude tags sessions read from Claude Code project logs.
const SourceClaude = "claude"

// ClaudeStore reads <ProjectsDir>/<project id>/*.jsonl.
type ClaudeStore struct {
	ProjectsDir string
	now         func() time.Time
}

// NewClaudeStore returns a store rooted at projectsDir (usually ~/.claude/projects).
func NewClaudeStore(projectsDir string) *ClaudeStore {
	return &ClaudeStore{ProjectsDir: projectsDir, now: time.Now}
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9-]`)

// ProjectID maps an absolute project path to its log directory name.
func ProjectID(projectPath string) string {
	return strings.ReplaceAll(projectPath, "/", "-")
}

// projectDirs lists candidate directories; newer hosts also replace dots and
// underscores, older ones only slashes.
func (c *ClaudeStore) projectDirs(projectPath string) []string {
	primary := filepath.Join(c.ProjectsDir, ProjectID(projectPath))
	alt := filepath.Join(c.ProjectsDir, nonAlnum.ReplaceAllString(projectPath, "-"))
	if alt == primary {
		return []string{primary}
	}
	return []string{primary, alt}
}

// Discover implements Store.
func (c *ClaudeStore) Discover(ctx context.Context, projectPath string) ([]Session, error) {
	sessions, err := c.discoverIn(ctx, c.projectDirs(projectPath), projectPath, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	sortNewestFirst(sessions)
	return sessions, nil
}

// discoverIn collects the sessions of dirs, skipping ids already in seen.
func (c *ClaudeStore) discoverIn(ctx context.Context, dirs []string, projectPath string, seen map[string]bool) ([]Session, error) {
	var sessions []Session
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			return nil, errors.NewIO("list sessions", err)
		}
		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id := strings.TrimSuffix(filepath.Base(path), ".jsonl")
			if seen[id] {
				continue
			}
			s := Session{
				ID:           id,
				ProjectPath:  projectPath,
				Path:         path,
				Source:       SourceClaude,
				DiscoveredAt: c.now(),
			}
			if err := statSession(&s); err != nil {
				// Deleted between glob and stat
				continue
			}
			seen[id] = true
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// Entries implements Store.
func (c *ClaudeStore) Entries(s Session) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for line, err := range scanLines(s.Path) {
			if err != nil {
				if !yield(Entry{}, err) || !errors.Is(err, errors.ErrParse) {
					return
				}
				continue
			}
			entry, ok, err := parseClaudeLine(line.Data)
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
			if entry.SessionID == "" {
				entry.SessionID = s.ID
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

type claudeLine struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Timestamp string         `json:"timestamp"`
	Summary   string         `json:"summary"`
	Message   *claudeMessage `json:"message"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Content  json.RawMessage `json:"content"`
}

// parseClaudeLine decodes one log line. ok is false for line types that carry
// no conversation (file snapshots, progress events).
func parseClaudeLine(data []byte) (Entry, bool, error) {
	var raw claudeLine
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, false, err
	}

	entry := Entry{
		SessionID: raw.SessionID,
		Timestamp: parseTimestamp(raw.Timestamp),
	}

	switch raw.Type {
	case "summary":
		if raw.Summary == "" {
			return Entry{}, false, nil
		}
		entry.Role = RoleSummary
		entry.Text = raw.Summary
		return entry, true, nil
	case "user":
		entry.Role = RoleUser
	case "assistant":
		entry.Role = RoleAssistant
	default:
		return Entry{}, false, nil
	}

	if raw.Message == nil || len(raw.Message.Content) == 0 {
		return Entry{}, false, nil
	}

	var text string
	if err := json.Unmarshal(raw.Message.Content, &text); err == nil {
		entry.Text = text
	} else {
		var blocks []claudeBlock
		if err := json.Unmarshal(raw.Message.Content, &blocks); err != nil {
			return Entry{}, false, err
		}
		applyClaudeBlocks(&entry, blocks)
	}

	entry.SystemReminder = isSystemReminder(entry.Text)
	return entry, true, nil
}

func applyClaudeBlocks(entry *Entry, blocks []claudeBlock) {
	var texts, thoughts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case "thinking":
			if b.Thinking != "" {
				thoughts = append(thoughts, b.Thinking)
			}
		case "tool_use":
			entry.ToolCalls = append(entry.ToolCalls, ToolCall{Name: b.Name, Summary: toolSummary(b.Name, b.Input)})
		case "tool_result":
			if content := decodeText(b.Content); content != "" {
				entry.ToolResults = append(entry.ToolResults, content)
			}
		}
	}
	entry.Text = strings.Join(texts, "\n")
	entry.Thinking = strings.Join(thoughts, "\n")
}

// toolSummary picks the argument that identifies what a tool touched.
func toolSummary(name string, input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return ""
	}
	var key string
	switch name {
	case "Edit", "Write", "Read", "MultiEdit", "NotebookEdit":
		key = "file_path"
	case "Bash":
		key = "command"
	case "Glob", "Grep":
		key = "pattern"
	case "WebFetch":
		key = "url"
	default:
		return ""
	}
	s, _ := args[key].(string)
	return s
}

func sortNewestFirst(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].ModTime.Equal(sessions[j].ModTime) {
			return sessions[i].ModTime.After(sessions[j].ModTime)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// dirExists reports whether path is an existing directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
