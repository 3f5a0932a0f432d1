package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wm/internal/errors"
)

func TestParse_PositiveVariants(t *testing.T) {
	prefixes := []string{"", "# ", "## ", "> ", "* ", "**", "  ", "> ## "}
	values := []string{"yes", "YES", "Yes", "true", "TRUE", "**YES**", "yes."}

	for _, p := range prefixes {
		for _, v := range values {
			text := fmt.Sprintf("Some preamble\n%sHAS_KNOWLEDGE: %s\n\nPrefer functional style\n- and small functions\n\n", p, v)
			t.Run(p+v, func(t *testing.T) {
				d, err := Parse(text, MarkerHasKnowledge)
				require.NoError(t, err)
				require.True(t, d.Found)
				require.True(t, d.Positive)
				require.Equal(t, "Prefer functional style\n- and small functions", d.Payload)
			})
		}
	}
}

func TestParse_MarkerCaseInsensitive(t *testing.T) {
	d, err := Parse("has_knowledge: yes\nbody", "HAS_KNOWLEDGE")
	require.NoError(t, err)
	require.True(t, d.Positive)
	require.Equal(t, "body", d.Payload)
}

func TestParse_BoldWrappedMarker(t *testing.T) {
	d, err := Parse("**HAS_KNOWLEDGE:** YES\nbody", MarkerHasKnowledge)
	require.NoError(t, err)
	require.True(t, d.Positive)
}

func TestParse_Negative(t *testing.T) {
	for _, v := range []string{"no", "NO", "false", "False"} {
		d, err := Parse("HAS_KNOWLEDGE: "+v+"\nnothing here", MarkerHasKnowledge)
		require.NoError(t, err)
		require.True(t, d.Found)
		require.False(t, d.Positive)
	}
}

func TestParse_NoMarkerFallback(t *testing.T) {
	inputs := []string{
		"",
		"I found some knowledge: prefer tabs",
		"HAS_RELEVANT: yes\nbody",
		"KNOWLEDGE: yes",
		"HAS_KNOWLEDGE yes",
	}
	for _, in := range inputs {
		d, err := Parse(in, MarkerHasKnowledge)
		require.NoError(t, err, "input %q", in)
		require.False(t, d.Found)
		require.False(t, d.Positive)
		require.Equal(t, "", d.Payload)
	}
}

func TestParse_AmbiguousFallsBackToFalse(t *testing.T) {
	for _, v := range []string{"maybe", "", "partially yes"} {
		d, err := Parse("HAS_KNOWLEDGE: "+v+"\nsomething", MarkerHasKnowledge)
		require.True(t, errors.Is(err, errors.ErrAmbiguousValue), "value %q: got %v", v, err)
		require.True(t, d.Found)
		require.False(t, d.Positive)
	}
}

func TestParse_FirstMarkerWins(t *testing.T) {
	d, err := Parse("HAS_KNOWLEDGE: no\nHAS_KNOWLEDGE: yes\nbody", MarkerHasKnowledge)
	require.NoError(t, err)
	require.False(t, d.Positive)
	require.Equal(t, "HAS_KNOWLEDGE: yes\nbody", d.Payload)
}

func TestParse_CRLF(t *testing.T) {
	d, err := Parse("HAS_KNOWLEDGE: YES\r\n\r\nPrefer functional style\r\n", MarkerHasKnowledge)
	require.NoError(t, err)
	require.True(t, d.Positive)
	require.Equal(t, "Prefer functional style", d.Payload)
}

func TestParse_EmptyPayload(t *testing.T) {
	d, err := Parse("HAS_KNOWLEDGE: YES\n\n\n", MarkerHasKnowledge)
	require.NoError(t, err)
	require.True(t, d.Positive)
	require.Equal(t, "", d.Payload)
}

func TestParseCategorization(t *testing.T) {
	text := `Here is the split.

GUARDRAILS:
- Never commit secrets
- Tests must use a real database

## METIS:
* Prefer small PRs
• Read the failing test first
`
	c, err := ParseCategorization(text)
	require.NoError(t, err)
	require.Equal(t, []string{"Never commit secrets", "Tests must use a real database"}, c.Guardrails)
	require.Equal(t, []string{"Prefer small PRs", "Read the failing test first"}, c.Metis)
}

func TestParseCategorization_UnbulletedLines(t *testing.T) {
	text := "GUARDRAILS:\nNever push to main\nNever skip CI\n\nMETIS:\n- Small PRs\nAlso note: prefer tables\n"
	c, err := ParseCategorization(text)
	require.NoError(t, err)
	require.Equal(t, []string{"Never push to main", "Never skip CI"}, c.Guardrails)
	require.Equal(t, []string{"Small PRs", "Also note: prefer tables"}, c.Metis)
}

func TestParseCategorization_HeadingStyleAndNone(t *testing.T) {
	text := "## Guardrails\nGUARDRAILS: none\n\n**METIS**\n- one\n- One\n"
	c, err := ParseCategorization(text)
	require.NoError(t, err)
	require.Empty(t, c.Guardrails)
	require.Equal(t, []string{"one"}, c.Metis)
}

func TestParseCategorization_InlineItem(t *testing.T) {
	c, err := ParseCategorization("GUARDRAILS: Never force-push\nMETIS:\n")
	require.NoError(t, err)
	require.Equal(t, []string{"Never force-push"}, c.Guardrails)
	require.Empty(t, c.Metis)
}

func TestParseCategorization_NoMarkers(t *testing.T) {
	_, err := ParseCategorization("- just a list\n- of things\n")
	require.True(t, errors.Is(err, errors.ErrParse), "got %v", err)
}
