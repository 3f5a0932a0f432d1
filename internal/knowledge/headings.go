package knowledge

import (
	"regexp"
	"slices"
	"strings"
)

// heading is one ATX heading found outside fenced code.
type heading struct {
	level     int
	name      string
	start     int // offset of the '#'
	bodyStart int // offset after the heading line
}

var (
	headingLine = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+([^\n]+?)[ \t]*$`)
	fenceLine   = regexp.MustCompile("(?m)^ {0,3}(`{3,}|~{3,})")
)

// fences returns the [start, end) spans of closed fenced code blocks. A fence
// closes on the same character repeated at least as many times. An unclosed
// fence hides nothing, so a stray one in a payload cannot swallow later blocks.
func fences(text string) [][2]int {
	var spans [][2]int
	open, openAt := "", 0
	for _, m := range fenceLine.FindAllStringSubmatchIndex(text, -1) {
		marker := text[m[2]:m[3]]
		switch {
		case open == "":
			open, openAt = marker, m[0]
		case marker[0] == open[0] && len(marker) >= len(open):
			spans = append(spans, [2]int{openAt, m[1]})
			open = ""
		}
	}
	return spans
}

// headings lists the headings of text in order, skipping any inside fences
// so a payload that quotes markdown cannot split a ledger block.
func headings(text string) []heading {
	spans := fences(text)
	fenced := func(pos int) bool {
		return slices.ContainsFunc(spans, func(s [2]int) bool { return pos >= s[0] && pos < s[1] })
	}

	var out []heading
	for _, m := range headingLine.FindAllStringSubmatchIndex(text, -1) {
		if fenced(m[0]) {
			continue
		}
		h := heading{level: m[3] - m[2], name: text[m[4]:m[5]], start: m[0], bodyStart: m[1]}
		if h.bodyStart < len(text) && text[h.bodyStart] == '\n' {
			h.bodyStart++
		}
		out = append(out, h)
	}
	return out
}

var placeholders = []string{"(pending)", "(none)", "(empty)", "(tbd)", "(n/a)", "tbd", "n/a", "none", "pending", "-"}

// isPlaceholder reports whether a body says nothing: blank or a stock filler.
func isPlaceholder(body string) bool {
	body = strings.ToLower(strings.TrimSpace(body))
	return body == "" || slices.Contains(placeholders, body)
}
