package knowledge

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Auth  Refactor ", "auth refactor"},
		{"UPPER", "upper"},
		{"tab\tand\nnewline", "tab and newline"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountCharsAndTokens(t *testing.T) {
	require.Equal(t, 5, CountChars("héllo"))
	require.Equal(t, 0, EstimateTokens("   "))
	require.Equal(t, 4, EstimateTokens("one two three"))
}

func TestDedup(t *testing.T) {
	got := Dedup([]string{"Never push to main", "never  push to MAIN", " ", "Prefer small PRs"})
	require.Equal(t, []string{"Never push to main", "Prefer small PRs"}, got)
}

func TestHeadings_IgnoresFencedHeaders(t *testing.T) {
	text := "## A\nbody\n```\n## not a header\n```\n## B\nmore\n"
	hs := headings(text)
	require.Len(t, hs, 2)
	require.Equal(t, "A", hs[0].name)
	require.Equal(t, 2, hs[0].level)
	require.Contains(t, text[hs[0].bodyStart:hs[1].start], "## not a header")
	require.Equal(t, "B", hs[1].name)

	require.Len(t, headings("## A\n~~~\n## B\n"), 2, "unclosed fence")
}

func TestIsPlaceholder(t *testing.T) {
	for _, s := range []string{"", "  \n", "(none)", "N/A", " - "} {
		require.True(t, isPlaceholder(s), "%q", s)
	}
	require.False(t, isPlaceholder("real content"))
}

func TestLedger_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	text := FormatLedgerBlock(LedgerBlock{SessionID: "s1", ExtractedAt: at, Body: "Prefer functional style"}) +
		FormatLedgerBlock(LedgerBlock{SessionID: "s2", ExtractedAt: at.Add(time.Hour), Body: "## Rationale\nTests must hit a real db"})

	blocks := ParseLedger(text)
	want := []LedgerBlock{
		{SessionID: "s1", ExtractedAt: at, Body: "Prefer functional style"},
		{SessionID: "s2", ExtractedAt: at.Add(time.Hour), Body: "## Rationale\nTests must hit a real db"},
	}
	if diff := cmp.Diff(want, blocks); diff != "" {
		t.Errorf("ParseLedger mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLedger_SkipsPlaceholderBlocks(t *testing.T) {
	text := "## Session: a\n_Extracted: 2026-03-01T12:00:00Z_\n\n(none)\n\n## Session: b\n\nreal\n"
	blocks := ParseLedger(text)
	require.Len(t, blocks, 1)
	require.Equal(t, "b", blocks[0].SessionID)
	require.True(t, blocks[0].ExtractedAt.IsZero())
	require.Equal(t, "real", blocks[0].Body)
}

func TestParseLedger_Empty(t *testing.T) {
	require.Empty(t, ParseLedger(""))
	require.Empty(t, ParseLedger("no headers at all"))
}

func TestListItems(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     []string
	}{
		{"dash bullets", "- one\n- two\n", []string{"one", "two"}},
		{"star bullets", "* one\n* two", []string{"one", "two"}},
		{"unicode bullets", "• one\n• two", []string{"one", "two"}},
		{"ordered", "1. first\n2. second", []string{"first", "second"}},
		{"continuation line", "- long item\n  continues here\n- short", []string{"long item continues here", "short"}},
		{"nested", "- parent\n  - child", []string{"parent", "child"}},
		{"unindented line after item", "- Small PRs\nAlso note: prefer tables", []string{"Small PRs", "Also note: prefer tables"}},
		{"paragraph fallback", "Just a sentence.\n\nAnother one.", []string{"Just a sentence.", "Another one."}},
		{"one item per unbulleted line", "Never push to main\nNever skip CI\n", []string{"Never push to main", "Never skip CI"}},
		{"empty", "  \n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ListItems(tt.fragment)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListItems mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderFile(t *testing.T) {
	require.Equal(t, "", RenderFile(Guardrail, nil))

	out := RenderFile(Metis, []string{"Prefer small PRs", "Run tests first"})
	require.True(t, strings.HasPrefix(out, "# Metis\n\n"))
	require.Contains(t, out, "- Prefer small PRs\n")
	require.Equal(t, 2, CountItems(out))
	require.Equal(t, 0, CountItems(""))
}
