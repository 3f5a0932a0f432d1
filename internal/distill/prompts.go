package distill

import (
	"fmt"
	"strings"

	"github.com/hpungsan/wm/internal/generate"
	"github.com/hpungsan/wm/internal/protocol"
)

const extractSystemPrompt = `You extract tacit knowledge from a coding session transcript.

Tacit knowledge is what the user revealed without stating it as an instruction:
rationale behind decisions, constraints they enforced, preferences they showed
by correcting or redirecting the assistant, and lessons learned from mistakes.

Ignore explicit instructions, routine tool output, and anything specific to a
single throwaway task. Prefer items that would still matter in a future session.

Respond with exactly this format:

` + protocol.MarkerHasKnowledge + `: YES or NO

If YES, follow with a markdown bullet list, one item per line, each a single
self-contained sentence. Write nothing else.`

const categorizeSystemPrompt = `You curate a project's working memory.

You receive raw extractions accumulated across sessions. Split them into two classes:

- Guardrails: hard constraints that must never be violated (security rules,
  forbidden operations, required conventions, invariants).
- Metis: advisory wisdom about working effectively (preferences, patterns,
  heuristics, context that usually helps).

Combine duplicates and near-duplicates into one item. Drop items that are
contradicted by later extractions. Each item is one self-contained sentence.

Respond with exactly this format:

` + protocol.SectionGuardrails + `:
- item

` + protocol.SectionMetis + `:
- item

Write "- none" under a section with no items. Write nothing else.`

func extractPrompt(sessionID, transcriptText string) generate.Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n\n", sessionID)
	sb.WriteString("<transcript>\n")
	sb.WriteString(transcriptText)
	sb.WriteString("</transcript>\n")
	return generate.Prompt{System: extractSystemPrompt, User: sb.String()}
}

func categorizePrompt(ledger string) generate.Prompt {
	var sb strings.Builder
	sb.WriteString("<raw_extractions>\n")
	sb.WriteString(strings.TrimSpace(ledger))
	sb.WriteString("\n</raw_extractions>\n")
	return generate.Prompt{System: categorizeSystemPrompt, User: sb.String()}
}
