package knowledge

import (
	"fmt"
	"strings"
	"time"
)

const (
	sessionHeaderPrefix = "Session:"
	extractedPrefix     = "_Extracted: "
)

// LedgerBlock is one session-tagged extraction in raw_extractions.md.
type LedgerBlock struct {
	SessionID   string    `json:"session_id"`
	ExtractedAt time.Time `json:"extracted_at"`
	Body        string    `json:"body"`
}

// FormatLedgerBlock renders a block for appending to the ledger.
func FormatLedgerBlock(b LedgerBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s %s\n", sessionHeaderPrefix, b.SessionID)
	fmt.Fprintf(&sb, "%s%s_\n\n", extractedPrefix, b.ExtractedAt.UTC().Format(time.RFC3339))
	sb.WriteString(strings.TrimSpace(b.Body))
	sb.WriteString("\n\n")
	return sb.String()
}

// ParseLedger splits ledger text into blocks in file order. Headings inside a
// payload stay part of the enclosing block; only "## Session:" starts a new one.
// Blocks whose body is empty or a placeholder are dropped.
func ParseLedger(text string) []LedgerBlock {
	var starts []heading
	for _, h := range headings(text) {
		if h.level == 2 && strings.HasPrefix(h.name, sessionHeaderPrefix) {
			starts = append(starts, h)
		}
	}

	blocks := make([]LedgerBlock, 0, len(starts))
	for i, h := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1].start
		}
		body := ""
		if h.bodyStart < end {
			body = text[h.bodyStart:end]
		}

		block := LedgerBlock{
			SessionID: strings.TrimSpace(strings.TrimPrefix(h.name, sessionHeaderPrefix)),
		}

		body = strings.TrimLeft(body, "\n")
		if line, rest, ok := strings.Cut(body, "\n"); ok && strings.HasPrefix(line, extractedPrefix) {
			stamp := strings.TrimSuffix(strings.TrimPrefix(line, extractedPrefix), "_")
			if at, err := time.Parse(time.RFC3339, strings.TrimSpace(stamp)); err == nil {
				block.ExtractedAt = at
			}
			body = rest
		}

		if isPlaceholder(body) {
			continue
		}
		block.Body = strings.TrimSpace(body)
		blocks = append(blocks, block)
	}
	return blocks
}
