// Package dive manages dive contexts: focused-session manifests, one of which
// is current at any time and is appended to the compiled working set.
package dive

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/wm/internal/errors"
)

// Manifest is one dive context. Structured fields live in YAML frontmatter;
// Body is the markdown injected at compile time.
type Manifest struct {
	Name        string    `yaml:"name,omitempty" json:"name,omitempty"`
	Intent      string    `yaml:"intent,omitempty" json:"intent,omitempty"`
	Focus       string    `yaml:"focus,omitempty" json:"focus,omitempty"`
	Constraints []string  `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Knowledge   []string  `yaml:"knowledge,omitempty" json:"knowledge,omitempty"`
	Workflow    []string  `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Sources     []string  `yaml:"sources,omitempty" json:"sources,omitempty"`
	CreatedAt   time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`

	Body string `yaml:"-" json:"body"`
}

const frontmatterDelim = "---\n"

// Render fills Body from the structured fields. A manifest with no fields
// renders as "".
func (m *Manifest) Render() string {
	var b strings.Builder

	title := m.Name
	if title == "" {
		title = "working"
	}

	section := func(heading, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", heading, strings.TrimSpace(text))
	}
	list := func(heading string, items []string, numbered bool) {
		var lines []string
		for _, item := range items {
			if item = strings.TrimSpace(item); item == "" {
				continue
			}
			if numbered {
				lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, item))
			} else {
				lines = append(lines, "- "+item)
			}
		}
		section(heading, strings.Join(lines, "\n"))
	}

	section("Intent", m.Intent)
	section("Focus", m.Focus)
	list("Constraints", m.Constraints, false)
	list("Relevant Knowledge", m.Knowledge, false)
	list("Workflow", m.Workflow, true)
	list("Sources", m.Sources, false)

	if b.Len() == 0 {
		m.Body = ""
		return ""
	}
	m.Body = "# Dive: " + title + "\n\n" + strings.TrimRight(b.String(), "\n") + "\n"
	return m.Body
}

// Empty reports whether the manifest carries nothing to inject.
func (m *Manifest) Empty() bool {
	return strings.TrimSpace(m.Body) == ""
}

// Marshal renders the on-disk form: frontmatter, blank line, body.
func (m *Manifest) Marshal() ([]byte, error) {
	front, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var b strings.Builder
	b.WriteString(frontmatterDelim)
	b.Write(front)
	b.WriteString(frontmatterDelim)
	b.WriteString("\n")
	b.WriteString(m.Body)
	if m.Body != "" && !strings.HasSuffix(m.Body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// Parse reads the on-disk form. A file without frontmatter is taken as a
// hand-written body.
func Parse(data []byte) (*Manifest, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, frontmatterDelim) {
		return &Manifest{Body: strings.TrimSpace(content)}, nil
	}

	rest := content[len(frontmatterDelim):]
	front, body, ok := strings.Cut(rest, "\n"+frontmatterDelim)
	if !ok {
		// Frontmatter closed at EOF
		front, ok = strings.CutSuffix(rest, "\n---")
		if !ok {
			return nil, errors.NewParseError("dive manifest", fmt.Errorf("missing closing frontmatter delimiter"))
		}
		body = ""
	}

	m := &Manifest{}
	if err := yaml.Unmarshal([]byte(front), m); err != nil {
		return nil, errors.NewParseError("dive manifest", err)
	}
	m.Body = strings.TrimSpace(body)
	return m, nil
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateName rejects names that are not safe single path components.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid dive name %q: use 1-64 letters, digits, '.', '_' or '-'", name))
	}
	return nil
}
