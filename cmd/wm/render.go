package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const maxWrap = 100

// outputMarkdown renders markdown with glamour when w is a terminal and
// prints it unchanged otherwise.
func outputMarkdown(w io.Writer, content string) error {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return outputText(w, content)
	}

	width := 80
	if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
		width = min(cols-4, maxWrap)
	}
	rendered, err := renderMarkdown(content, width)
	if err != nil {
		// Fall back to plain text if glamour fails
		return outputText(w, content)
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

// renderMarkdown renders markdown content for terminal display using glamour.
func renderMarkdown(content string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}
	return r.Render(content)
}
