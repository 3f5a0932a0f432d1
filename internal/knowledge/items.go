package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// Kind classifies a curated knowledge item.
type Kind string

const (
	Guardrail Kind = "guardrail"
	Metis     Kind = "metis"
)

// Title is the heading written at the top of the curated file for k.
func (k Kind) Title() string {
	switch k {
	case Guardrail:
		return "Guardrails"
	case Metis:
		return "Metis"
	}
	return string(k)
}

// unicodeBullet matches "•" bullets, which CommonMark does not treat as list markers.
var unicodeBullet = regexp.MustCompile(`(?m)^([ \t]*)•[ \t]*`)

var md = goldmark.New()

// ListItems extracts item text from a markdown fragment. Every list item
// (nested ones included) yields one entry, its text blocks joined by a space.
// An unindented line that CommonMark would fold into an item as a lazy
// continuation starts an item of its own. A fragment without any list falls
// back to its top-level paragraphs, one item per line.
func ListItems(fragment string) []string {
	src := []byte(unicodeBullet.ReplaceAllString(fragment, "$1- "))
	doc := md.Parser().Parse(gtext.NewReader(src))

	var items []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindListItem {
			return ast.WalkContinue, nil
		}
		var parts []string
		flush := func() {
			if len(parts) > 0 {
				items = append(items, strings.Join(parts, " "))
				parts = nil
			}
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Kind() != ast.KindTextBlock && c.Kind() != ast.KindParagraph {
				continue
			}
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimSpace(string(seg.Value(src)))
				if line == "" {
					continue
				}
				if lazyLine(src, seg.Start) {
					flush()
				}
				parts = append(parts, line)
			}
		}
		flush()
		return ast.WalkContinue, nil
	})

	if len(items) > 0 {
		return items
	}

	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() != ast.KindParagraph {
			continue
		}
		lines := c.Lines()
		for i := 0; i < lines.Len(); i++ {
			if line := strings.TrimSpace(string(lines.At(i).Value(src))); line != "" {
				items = append(items, line)
			}
		}
	}
	return items
}

// lazyLine reports whether the segment starting at pos begins in column 0.
// Inside a list item only lazy continuation lines do; the first line starts
// after its marker and indented continuations after their padding.
func lazyLine(src []byte, pos int) bool {
	return pos == 0 || src[pos-1] == '\n'
}

// RenderFile renders a curated knowledge file. No items renders as "".
func RenderFile(k Kind, items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", k.Title())
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s\n", item)
	}
	return sb.String()
}

// CountItems returns the number of list items in a curated file.
func CountItems(content string) int {
	if strings.TrimSpace(content) == "" {
		return 0
	}
	return len(ListItems(content))
}
