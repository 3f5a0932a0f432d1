package compress

import (
	"fmt"
	"strings"

	"github.com/hpungsan/wm/internal/generate"
	"github.com/hpungsan/wm/internal/knowledge"
)

const systemPrompt = `You are compressing accumulated tacit knowledge into a more concise form.

TACIT KNOWLEDGE REMINDER (what we are preserving):
- Rationale behind decisions (why this approach)
- Paths rejected and why
- Constraints discovered through friction
- Preferences revealed by corrections
- Patterns followed without being stated

COMPRESSION STRATEGIES:
1. MERGE related items into broader principles
   - "Prefers X in context A" + "Prefers X in context B" -> "Generally prefers X"
2. ABSTRACT specific instances into general patterns
   - Several mentions of specific files or functions -> the architectural preference behind them
3. REMOVE obsolete items
   - Superseded by later, more refined understanding
   - Too specific to be useful in a new context
4. PRESERVE critical items
   - Hard constraints that caused friction when violated
   - Preferences that were corrected more than once
   - Architectural decisions with a clear rationale
5. CONSOLIDATE structure
   - Keep the top-level heading
   - One concise bullet per item, no redundant phrasing

THE GOAL: a new session months from now gets the essential wisdom in fewer words.
Compress aggressively but preserve meaning.

RESPONSE FORMAT:

If compression was possible, respond:
WAS_COMPRESSED: YES

<compressed markdown content>

If the file is already concise and no meaningful compression is possible, respond:
WAS_COMPRESSED: NO`

func compressPrompt(k knowledge.Kind, content string) generate.Prompt {
	return generate.Prompt{
		System: systemPrompt,
		User: fmt.Sprintf("CURRENT %s TO COMPRESS:\n\n%s\n\nOUTPUT:",
			strings.ToUpper(k.Title()), strings.TrimSpace(content)),
	}
}
